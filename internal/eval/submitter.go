// Package eval is the front door of the evaluation service: it validates
// submissions, collapses identical ones onto a deterministic job
// fingerprint, and schedules pipeline runs on the worker pool. Polling
// reads back through the same package so the API surface stays thin.
package eval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hanifmn/cveval/internal/docstore"
	"github.com/hanifmn/cveval/internal/storage"
)

// SubmitRequest is a request to evaluate one candidate against one role.
type SubmitRequest struct {
	JobTitle     string `json:"job_title"`
	CVFileID     string `json:"cv_id"`
	ReportFileID string `json:"report_id"`
}

// ValidationError reports a rejected submission. The field name is safe to
// surface to API clients.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Fingerprint derives the deterministic job id for a submission. The id is
// the first 32 hex characters of the SHA-256 digest of the canonical JSON
// encoding of the identifying fields, with keys sorted and the title
// trimmed. Identical submissions always map to the same id.
func Fingerprint(req SubmitRequest) string {
	canonical, _ := json.Marshal(struct {
		CVID     string `json:"cv_id"`
		JobTitle string `json:"job_title"`
		ReportID string `json:"report_id"`
	}{
		CVID:     req.CVFileID,
		JobTitle: strings.TrimSpace(req.JobTitle),
		ReportID: req.ReportFileID,
	})
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:])[:32]
}

// SubmitStore is the slice of storage the submitter needs.
type SubmitStore interface {
	CreateJob(j storage.Job) error
	GetJob(id string) (storage.Job, error)
	ResetJob(id string) error
	Get(jobID string) (storage.Job, *storage.EvaluationResult, error)
}

// Scheduler hands a job to the background workers.
type Scheduler interface {
	Submit(task func()) error
}

// Runner executes the pipeline for one job.
type Runner interface {
	Run(ctx context.Context, job storage.Job)
}

// Service validates, deduplicates, and schedules evaluation jobs.
type Service struct {
	store     SubmitStore
	docs      docstore.Store
	scheduler Scheduler
	runner    Runner
	logger    *slog.Logger
}

// NewService assembles the submission service.
func NewService(store SubmitStore, docs docstore.Store, scheduler Scheduler, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		docs:      docs,
		scheduler: scheduler,
		runner:    runner,
		logger:    logger,
	}
}

// Submit registers an evaluation job and schedules it. Resubmitting an
// identical payload returns the existing job without scheduling new work,
// except that a failed job is reset to queued and run again. Document
// existence is only checked for submissions that create a job, so a known
// fingerprint resolves even after the uploaded files have been cleaned up.
func (s *Service) Submit(req SubmitRequest) (storage.Job, error) {
	if err := s.validate(req); err != nil {
		return storage.Job{}, err
	}

	id := Fingerprint(req)
	log := s.logger.With("job_id", id, "job_title", req.JobTitle)

	existing, err := s.store.GetJob(id)
	switch {
	case err == nil:
		if existing.Status != storage.StatusFailed {
			log.Info("duplicate submission, returning existing job", "status", existing.Status)
			return existing, nil
		}
		if err := s.store.ResetJob(id); err != nil {
			return storage.Job{}, fmt.Errorf("resetting failed job: %w", err)
		}
		reset, err := s.store.GetJob(id)
		if err != nil {
			return storage.Job{}, fmt.Errorf("re-reading reset job: %w", err)
		}
		log.Info("failed job resubmitted, rescheduling")
		return reset, s.schedule(reset)
	case err != storage.ErrNotFound:
		return storage.Job{}, fmt.Errorf("looking up job: %w", err)
	}

	if err := s.checkDocuments(req); err != nil {
		return storage.Job{}, err
	}

	job := storage.Job{
		ID:           id,
		JobTitle:     strings.TrimSpace(req.JobTitle),
		CVFileID:     req.CVFileID,
		ReportFileID: req.ReportFileID,
		Status:       storage.StatusQueued,
	}
	if err := s.store.CreateJob(job); err != nil {
		if err == storage.ErrDuplicate {
			// A concurrent submission won the insert; its job is the job.
			winner, err := s.store.GetJob(id)
			if err != nil {
				return storage.Job{}, fmt.Errorf("re-reading concurrent job: %w", err)
			}
			log.Info("lost submission race, returning winner")
			return winner, nil
		}
		return storage.Job{}, fmt.Errorf("creating job: %w", err)
	}

	log.Info("job created")
	return job, s.schedule(job)
}

func (s *Service) schedule(job storage.Job) error {
	if err := s.scheduler.Submit(func() { s.runner.Run(context.Background(), job) }); err != nil {
		return fmt.Errorf("scheduling job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Service) validate(req SubmitRequest) error {
	if strings.TrimSpace(req.JobTitle) == "" {
		return &ValidationError{Field: "job_title", Reason: "must not be empty"}
	}
	if req.CVFileID == "" {
		return &ValidationError{Field: "cv_id", Reason: "must not be empty"}
	}
	if req.ReportFileID == "" {
		return &ValidationError{Field: "report_id", Reason: "must not be empty"}
	}
	return nil
}

func (s *Service) checkDocuments(req SubmitRequest) error {
	if !s.docs.Exists(req.CVFileID) {
		return fmt.Errorf("cv_id %s: %w", req.CVFileID, docstore.ErrNotFound)
	}
	if !s.docs.Exists(req.ReportFileID) {
		return fmt.Errorf("report_id %s: %w", req.ReportFileID, docstore.ErrNotFound)
	}
	return nil
}

// Poll returns the current state of a job and, once completed, its
// result. Returns storage.ErrNotFound for unknown ids.
func (s *Service) Poll(jobID string) (storage.Job, *storage.EvaluationResult, error) {
	return s.store.Get(jobID)
}
