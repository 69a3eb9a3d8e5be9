package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateJob inserts a new job row. Returns ErrDuplicate if a job with the
// same fingerprint already exists, so concurrent submissions of an
// identical payload collapse onto a single row.
func (s *Store) CreateJob(j Job) error {
	now := time.Now().UTC()
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := j.Status
	if status == "" {
		status = StatusQueued
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, job_title, cv_file_id, report_file_id, status, stage, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		j.ID, j.JobTitle, j.CVFileID, j.ReportFileID, string(status), string(j.Stage),
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob returns the job with the given fingerprint, or ErrNotFound.
func (s *Store) GetJob(id string) (Job, error) {
	return scanJob(s.db.QueryRow(`
		SELECT id, job_title, cv_file_id, report_file_id, status, stage, error_message, created_at, updated_at
		FROM jobs WHERE id = ?`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var status, stage, createdAt, updatedAt string
	var errMsg sql.NullString
	err := row.Scan(&j.ID, &j.JobTitle, &j.CVFileID, &j.ReportFileID, &status, &stage, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	j.Stage = Stage(stage)
	j.ErrorMessage = errMsg.String
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return j, nil
}

// UpdateStage advances a job to the given stage and status, recording an
// error message when the job fails. Transitions are validated inside a
// transaction: stages never regress, and terminal statuses are immutable.
// Pollers therefore always observe a (stage, status) pair that was durably
// written.
func (s *Store) UpdateStage(id string, stage Stage, status Status, errMsg string) error {
	if !stage.Known() {
		return fmt.Errorf("unknown stage %q", stage)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transition transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanJob(tx.QueryRow(`
		SELECT id, job_title, cv_file_id, report_file_id, status, stage, error_message, created_at, updated_at
		FROM jobs WHERE id = ?`, id))
	if err != nil {
		return err
	}

	if cur.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", id, cur.Status)
	}
	if status != StatusFailed {
		if !statusChangeAllowed(cur.Status, status) {
			return fmt.Errorf("job %s: invalid status transition %s -> %s", id, cur.Status, status)
		}
		if stage.Before(cur.Stage) {
			return fmt.Errorf("job %s: stage %s would regress from %s", id, stage, cur.Stage)
		}
	}

	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`UPDATE jobs SET stage = ?, status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(stage), string(status), msg, now, id); err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}

	return tx.Commit()
}

// ResetJob returns a failed job to the queued state so it can be
// rescheduled under the same fingerprint. Only failed jobs can be reset.
func (s *Store) ResetJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, stage = '', error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusQueued), now, id, string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("resetting job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s is not in a failed state", id)
	}
	return nil
}

// SaveResult persists the evaluation result for a job. Results are written
// exactly once; a second write for the same job returns ErrDuplicate.
func (s *Store) SaveResult(r EvaluationResult) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	partial := 0
	if r.Partial {
		partial = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO evaluation_results (job_id, cv_match_rate, project_score, cv_feedback, project_feedback, overall_summary, raw_response, partial, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.CVMatchRate, r.ProjectScore, r.CVFeedback, r.ProjectFeedback,
		r.OverallSummary, r.RawResponse, partial, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting result for job %s: %w", r.JobID, err)
	}
	return nil
}

// GetResult returns the evaluation result for a job, or ErrNotFound.
func (s *Store) GetResult(jobID string) (EvaluationResult, error) {
	var r EvaluationResult
	var partial int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT job_id, cv_match_rate, project_score, cv_feedback, project_feedback, overall_summary, raw_response, partial, created_at
		FROM evaluation_results WHERE job_id = ?`, jobID,
	).Scan(&r.JobID, &r.CVMatchRate, &r.ProjectScore, &r.CVFeedback, &r.ProjectFeedback, &r.OverallSummary, &r.RawResponse, &partial, &createdAt)
	if err == sql.ErrNoRows {
		return EvaluationResult{}, ErrNotFound
	}
	if err != nil {
		return EvaluationResult{}, err
	}
	r.Partial = partial != 0
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return EvaluationResult{}, fmt.Errorf("parsing created_at for result %s: %w", jobID, err)
	}
	return r, nil
}

// Get returns a job together with its result, if one exists yet.
func (s *Store) Get(jobID string) (Job, *EvaluationResult, error) {
	job, err := s.GetJob(jobID)
	if err != nil {
		return Job{}, nil, err
	}
	res, err := s.GetResult(jobID)
	if err == ErrNotFound {
		return job, nil, nil
	}
	if err != nil {
		return Job{}, nil, err
	}
	return job, &res, nil
}
