package storage

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testJob(id string) Job {
	return Job{
		ID:           id,
		JobTitle:     "Backend Engineer",
		CVFileID:     "doc-1",
		ReportFileID: "doc-2",
		Status:       StatusQueued,
		Stage:        StageNone,
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least 2 migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migration versions not ascending: %v", versions)
		}
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob("fp-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusQueued || got.Stage != StageNone {
		t.Errorf("got status=%s stage=%q, want queued/none", got.Status, got.Stage)
	}
	if got.JobTitle != "Backend Engineer" || got.CVFileID != "doc-1" || got.ReportFileID != "doc-2" {
		t.Errorf("job fields not round-tripped: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestCreateJobDuplicate(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(testJob("fp-1")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second CreateJob = %v, want ErrDuplicate", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestUpdateStageForwardOnly(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	steps := []Stage{StageExtracting, StageParsing, StageRetrieving, StageScoring, StageAggregating}
	for _, st := range steps {
		if err := s.UpdateStage("fp-1", st, StatusProcessing, ""); err != nil {
			t.Fatalf("UpdateStage(%s): %v", st, err)
		}
	}

	// Regression must be rejected and leave the row untouched.
	if err := s.UpdateStage("fp-1", StageParsing, StatusProcessing, ""); err == nil {
		t.Error("stage regression was accepted")
	}
	got, err := s.GetJob("fp-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Stage != StageAggregating || got.Status != StatusProcessing {
		t.Errorf("row changed after rejected regression: %+v", got)
	}
}

func TestUpdateStageTerminalImmutable(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.UpdateStage("fp-1", StageExtracting, StatusFailed, "corrupt pdf"); err != nil {
		t.Fatalf("UpdateStage to failed: %v", err)
	}

	if err := s.UpdateStage("fp-1", StageParsing, StatusProcessing, ""); err == nil {
		t.Error("update on failed job was accepted")
	}

	got, _ := s.GetJob("fp-1")
	if got.Status != StatusFailed || got.ErrorMessage != "corrupt pdf" {
		t.Errorf("failed job mutated: %+v", got)
	}
}

func TestUpdateStageInvalidStatusJump(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// queued -> completed skips processing and must be rejected.
	if err := s.UpdateStage("fp-1", StageCompleted, StatusCompleted, ""); err == nil {
		t.Error("queued -> completed was accepted")
	}
}

func TestResetJob(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Reset requires a failed job.
	if err := s.ResetJob("fp-1"); err == nil {
		t.Error("ResetJob on queued job succeeded")
	}

	if err := s.UpdateStage("fp-1", StageScoring, StatusFailed, "rate limited"); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if err := s.ResetJob("fp-1"); err != nil {
		t.Fatalf("ResetJob: %v", err)
	}

	got, err := s.GetJob("fp-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusQueued || got.Stage != StageNone || got.ErrorMessage != "" {
		t.Errorf("reset job = %+v, want queued/none with no error", got)
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	r := EvaluationResult{
		JobID:           "fp-1",
		CVMatchRate:     0.82,
		ProjectScore:    4.5,
		CVFeedback:      "strong backend background",
		ProjectFeedback: "clean error handling",
		OverallSummary:  "solid candidate",
		RawResponse:     `{"cv":{},"project":{}}`,
		Partial:         true,
	}
	if err := s.SaveResult(r); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := s.SaveResult(r); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second SaveResult = %v, want ErrDuplicate", err)
	}

	got, err := s.GetResult("fp-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.CVMatchRate != 0.82 || got.ProjectScore != 4.5 || !got.Partial {
		t.Errorf("result not round-tripped: %+v", got)
	}

	job, res, err := s.Get("fp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.ID != "fp-1" || res == nil || res.OverallSummary != "solid candidate" {
		t.Errorf("Get returned job=%+v res=%+v", job, res)
	}
}

func TestGetWithoutResult(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateJob(testJob("fp-1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	_, res, err := s.Get("fp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for fresh job, got %+v", res)
	}
}
