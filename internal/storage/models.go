package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing row.
// Submitters use it to resolve concurrent submissions of the same payload.
var ErrDuplicate = errors.New("duplicate record")

// Status is the lifecycle state of an evaluation job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validStatusChange maps each non-terminal status to the statuses
// reachable from it.
var validStatusChange = map[Status][]Status{
	StatusQueued:     {StatusQueued, StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
}

func statusChangeAllowed(from, to Status) bool {
	for _, s := range validStatusChange[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Stage is a named step in the evaluation pipeline. Stages advance only
// forward; the empty stage means no stage has started yet.
type Stage string

const (
	StageNone        Stage = ""
	StageExtracting  Stage = "extracting"
	StageParsing     Stage = "parsing"
	StageRetrieving  Stage = "retrieving"
	StageScoring     Stage = "scoring"
	StageAggregating Stage = "aggregating"
	StageCompleted   Stage = "completed"
)

var stageOrder = map[Stage]int{
	StageNone:        0,
	StageExtracting:  1,
	StageParsing:     2,
	StageRetrieving:  3,
	StageScoring:     4,
	StageAggregating: 5,
	StageCompleted:   6,
}

// Known reports whether s is one of the enumerated pipeline stages.
func (s Stage) Known() bool {
	_, ok := stageOrder[s]
	return ok
}

// Before reports whether s comes strictly before other in the pipeline order.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Job is one evaluation job, identified by the fingerprint of its
// submission payload.
type Job struct {
	ID           string
	JobTitle     string
	CVFileID     string
	ReportFileID string
	Status       Status
	Stage        Stage
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EvaluationResult is the outcome of a completed evaluation. One row per
// job, written once by the aggregating stage and never mutated.
type EvaluationResult struct {
	JobID           string
	CVMatchRate     float64
	ProjectScore    float64
	CVFeedback      string
	ProjectFeedback string
	OverallSummary  string
	RawResponse     string // provider payloads as JSON, retained for audit
	Partial         bool
	CreatedAt       time.Time
}
