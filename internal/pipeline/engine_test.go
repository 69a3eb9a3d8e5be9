package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/retry"
	"github.com/hanifmn/cveval/internal/storage"
)

type mockDocs struct {
	openFunc func(fileID string) ([]byte, error)
}

func (m *mockDocs) Save(content []byte, filename string) (string, error) { return "", nil }
func (m *mockDocs) Open(fileID string) ([]byte, error)                   { return m.openFunc(fileID) }
func (m *mockDocs) Exists(fileID string) bool                            { return true }

type mockProvider struct {
	parseResumeFunc    func(ctx context.Context, text string) (map[string]any, error)
	parseReportFunc    func(ctx context.Context, text string) (map[string]any, error)
	scoreResumeFunc    func(ctx context.Context, req llm.ScoreResumeRequest) (map[string]any, error)
	scoreReportFunc    func(ctx context.Context, req llm.ScoreReportRequest) (map[string]any, error)
	overallSummaryFunc func(ctx context.Context, resumeScore, reportScore map[string]any) (string, error)
}

func (m *mockProvider) ParseResume(ctx context.Context, text string) (map[string]any, error) {
	return m.parseResumeFunc(ctx, text)
}

func (m *mockProvider) ParseProjectReport(ctx context.Context, text string) (map[string]any, error) {
	return m.parseReportFunc(ctx, text)
}

func (m *mockProvider) ScoreResume(ctx context.Context, req llm.ScoreResumeRequest) (map[string]any, error) {
	return m.scoreResumeFunc(ctx, req)
}

func (m *mockProvider) ScoreProjectReport(ctx context.Context, req llm.ScoreReportRequest) (map[string]any, error) {
	return m.scoreReportFunc(ctx, req)
}

func (m *mockProvider) OverallSummary(ctx context.Context, resumeScore, reportScore map[string]any) (string, error) {
	return m.overallSummaryFunc(ctx, resumeScore, reportScore)
}

type mockRetriever struct {
	retrieveFunc func(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error) {
	return m.retrieveFunc(ctx, query, kind)
}

func happyProvider() *mockProvider {
	return &mockProvider{
		parseResumeFunc: func(ctx context.Context, text string) (map[string]any, error) {
			return map[string]any{"name": "Ada", "skills": []any{"Go"}}, nil
		},
		parseReportFunc: func(ctx context.Context, text string) (map[string]any, error) {
			return map[string]any{"summary": "built a service"}, nil
		},
		scoreResumeFunc: func(ctx context.Context, req llm.ScoreResumeRequest) (map[string]any, error) {
			return map[string]any{
				"technical_skills_match":     5.0,
				"experience_level":           4.0,
				"relevant_achievements":      4.0,
				"cultural_collaboration_fit": 3.0,
				"cv_feedback":                "strong backend background",
			}, nil
		},
		scoreReportFunc: func(ctx context.Context, req llm.ScoreReportRequest) (map[string]any, error) {
			return map[string]any{
				"correctness":               4.0,
				"code_quality_structure":    4.0,
				"resilience_error_handling": 4.0,
				"documentation_explanation": 3.0,
				"creativity_bonus":          4.0,
				"project_feedback":          "solid error handling",
			}, nil
		},
		overallSummaryFunc: func(ctx context.Context, resumeScore, reportScore map[string]any) (string, error) {
			return "a good fit overall", nil
		},
	}
}

func happyRetriever() *mockRetriever {
	return &mockRetriever{
		retrieveFunc: func(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error) {
			return []retrieval.ContextChunk{{ID: "c1", Kind: kind, Text: "rubric text for " + kind, Score: 0.9}}, nil
		},
	}
}

func plainDocs() *mockDocs {
	return &mockDocs{
		openFunc: func(fileID string) ([]byte, error) {
			return []byte("document body for " + fileID), nil
		},
	}
}

func newTestEngine(t *testing.T, provider llm.Provider, retriever Retriever, docs *mockDocs) (*Engine, *storage.Store, storage.Job) {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	job := storage.Job{
		ID:           "abc123",
		JobTitle:     "Backend Engineer",
		CVFileID:     "cv-file",
		ReportFileID: "report-file",
	}
	if err := st.CreateJob(job); err != nil {
		t.Fatalf("creating job: %v", err)
	}

	policy := retry.DefaultPolicy()
	policy.BaseDelay = 0
	policy.MaxDelay = 0
	policy.Jitter = 0

	return New(st, docs, provider, retriever, policy, nil), st, job
}

func TestRunCompletesJob(t *testing.T) {
	engine, st, job := newTestEngine(t, happyProvider(), happyRetriever(), plainDocs())

	engine.Run(context.Background(), job)

	got, res, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Fatalf("expected completed, got %s (stage %s, error %q)", got.Status, got.Stage, got.ErrorMessage)
	}
	if got.Stage != storage.StageCompleted {
		t.Errorf("expected stage completed, got %s", got.Stage)
	}
	if res == nil {
		t.Fatal("expected a persisted result")
	}
	if res.CVMatchRate != 0.85 {
		t.Errorf("cv_match_rate = %f, want 0.85", res.CVMatchRate)
	}
	if res.ProjectScore != 3.9 {
		t.Errorf("project_score = %f, want 3.9", res.ProjectScore)
	}
	if res.OverallSummary != "a good fit overall" {
		t.Errorf("unexpected overall summary %q", res.OverallSummary)
	}
	if res.Partial {
		t.Error("well-formed payloads should not be partial")
	}
	if res.CVFeedback != "strong backend background" {
		t.Errorf("unexpected cv feedback %q", res.CVFeedback)
	}
	if !strings.Contains(res.RawResponse, "technical_skills_match") {
		t.Error("raw response should carry the raw scoring payloads")
	}
}

func TestRunFailsWhenDocumentMissing(t *testing.T) {
	docs := &mockDocs{
		openFunc: func(fileID string) ([]byte, error) {
			return nil, errors.New("document not found")
		},
	}
	engine, st, job := newTestEngine(t, happyProvider(), happyRetriever(), docs)

	engine.Run(context.Background(), job)

	got, res, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Stage != storage.StageExtracting {
		t.Errorf("expected failure at extracting, got %s", got.Stage)
	}
	if got.ErrorMessage == "" {
		t.Error("expected a recorded error message")
	}
	if res != nil {
		t.Error("failed job must not have a result")
	}
}

func TestRunFailsAfterParseExhaustion(t *testing.T) {
	provider := happyProvider()
	calls := 0
	provider.parseResumeFunc = func(ctx context.Context, text string) (map[string]any, error) {
		calls++
		return nil, context.DeadlineExceeded
	}
	engine, st, job := newTestEngine(t, provider, happyRetriever(), plainDocs())

	engine.Run(context.Background(), job)

	got, _, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Stage != storage.StageParsing {
		t.Errorf("expected failure at parsing, got %s", got.Stage)
	}
	if calls != 3 {
		t.Errorf("expected 3 parse attempts, got %d", calls)
	}
}

func TestRunDegradesWhenSummaryFails(t *testing.T) {
	provider := happyProvider()
	provider.overallSummaryFunc = func(ctx context.Context, resumeScore, reportScore map[string]any) (string, error) {
		return "", context.DeadlineExceeded
	}
	engine, st, job := newTestEngine(t, provider, happyRetriever(), plainDocs())

	engine.Run(context.Background(), job)

	got, res, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Fatalf("expected completed despite summary failure, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if res == nil {
		t.Fatal("expected a persisted result")
	}
	if res.OverallSummary != "" {
		t.Errorf("expected empty summary, got %q", res.OverallSummary)
	}
	if !res.Partial {
		t.Error("degraded summary must mark the result partial")
	}
	if res.CVMatchRate != 0.85 {
		t.Errorf("scores should survive a summary failure, got %f", res.CVMatchRate)
	}
}

func TestRunFailsWhenRetrievalErrors(t *testing.T) {
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error) {
			return nil, errors.New("embedding quota exceeded")
		},
	}
	engine, st, job := newTestEngine(t, happyProvider(), retriever, plainDocs())

	engine.Run(context.Background(), job)

	got, _, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Stage != storage.StageRetrieving {
		t.Errorf("expected failure at retrieving, got %s", got.Stage)
	}
}

func TestRunEmptyCorpusStillCompletes(t *testing.T) {
	retriever := &mockRetriever{
		retrieveFunc: func(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error) {
			return nil, nil
		},
	}
	provider := happyProvider()
	provider.scoreResumeFunc = func(ctx context.Context, req llm.ScoreResumeRequest) (map[string]any, error) {
		if req.ScoringRubric != "" {
			t.Errorf("expected empty rubric context, got %q", req.ScoringRubric)
		}
		return map[string]any{"cv_match_rate": 0.7}, nil
	}
	engine, st, job := newTestEngine(t, provider, retriever, plainDocs())

	engine.Run(context.Background(), job)

	got, res, err := st.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != storage.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if res == nil || res.CVMatchRate != 0.7 {
		t.Fatalf("expected cv_match_rate 0.7, got %+v", res)
	}
}

func TestStageTransitionsAreOrdered(t *testing.T) {
	rec := &recordingStore{}
	engine := New(rec, plainDocs(), happyProvider(), happyRetriever(), retry.Policy{MaxAttempts: 1, AttemptTimeout: 0}, nil)

	engine.Run(context.Background(), storage.Job{ID: "j1", JobTitle: "x", CVFileID: "a", ReportFileID: "b"})

	want := []storage.Stage{
		storage.StageExtracting,
		storage.StageParsing,
		storage.StageRetrieving,
		storage.StageScoring,
		storage.StageAggregating,
		storage.StageCompleted,
	}
	if len(rec.stages) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(rec.stages), rec.stages)
	}
	for i, s := range want {
		if rec.stages[i] != s {
			t.Errorf("transition %d: got %s, want %s", i, rec.stages[i], s)
		}
	}
	if !rec.resultSaved {
		t.Error("expected SaveResult before completion")
	}
}

type recordingStore struct {
	stages      []storage.Stage
	resultSaved bool
}

func (r *recordingStore) UpdateStage(id string, stage storage.Stage, status storage.Status, errMsg string) error {
	if stage == storage.StageCompleted && !r.resultSaved {
		return errors.New("completed before result was saved")
	}
	r.stages = append(r.stages, stage)
	return nil
}

func (r *recordingStore) SaveResult(res storage.EvaluationResult) error {
	r.resultSaved = true
	return nil
}
