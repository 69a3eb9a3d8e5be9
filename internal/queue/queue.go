// Package queue wraps a fixed-size goroutine pool used to run evaluation
// pipelines in the background. Submission never blocks the caller: tasks
// are handed to a buffered backlog that a dispatcher drains into the pool.
package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// ErrBacklogFull is returned by Submit when the backlog cannot accept
// another task without blocking.
var ErrBacklogFull = errors.New("queue: backlog full")

// backlogFactor sizes the backlog relative to the worker count.
const backlogFactor = 16

// Pool runs background tasks on a bounded number of workers.
type Pool struct {
	pool    *ants.Pool
	backlog chan func()
	done    chan struct{}
	logger  *slog.Logger
}

// New creates a worker pool with the given size. Sizes below 1 fall back
// to 4 workers.
func New(size int, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		size = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	ap, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v any) {
			logger.Error("worker panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	p := &Pool{
		pool:    ap,
		backlog: make(chan func(), size*backlogFactor),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go p.dispatch()
	return p, nil
}

// dispatch drains the backlog into the pool. pool.Submit parks the
// dispatcher goroutine when all workers are busy, so the backpressure
// stays here instead of on the submitting caller.
func (p *Pool) dispatch() {
	for {
		select {
		case <-p.done:
			return
		case task := <-p.backlog:
			if err := p.pool.Submit(task); err != nil {
				p.logger.Error("dispatching task", "error", err)
			}
		}
	}
}

// Submit enqueues a task and returns immediately. ErrBacklogFull is
// returned when the backlog is at capacity.
func (p *Pool) Submit(task func()) error {
	select {
	case <-p.done:
		return fmt.Errorf("submitting task: %w", ants.ErrPoolClosed)
	default:
	}
	select {
	case p.backlog <- task:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Running returns the number of currently busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the dispatcher and the pool. Backlogged tasks that have
// not started are dropped; their jobs remain in a queued or processing
// state and can be reset on restart.
func (p *Pool) Release() {
	close(p.done)
	p.pool.Release()
}
