// Package pipeline drives a submitted job through the evaluation stages:
// extraction, parsing, retrieval, scoring, and aggregation. Every stage
// transition is persisted before the stage's work begins, so a poller
// always sees where a job last made durable progress. Stage failures mark
// the job failed with a recorded message; they never surface to callers
// because the pipeline runs on background workers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hanifmn/cveval/internal/docstore"
	"github.com/hanifmn/cveval/internal/extract"
	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/retry"
	"github.com/hanifmn/cveval/internal/scoring"
	"github.com/hanifmn/cveval/internal/storage"
)

// Retriever is the slice of retrieval the engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, query, kind string) ([]retrieval.ContextChunk, error)
}

// JobStore is the slice of storage the engine writes through.
type JobStore interface {
	UpdateStage(id string, stage storage.Stage, status storage.Status, errMsg string) error
	SaveResult(r storage.EvaluationResult) error
}

// Engine executes the evaluation pipeline for one job at a time. It is
// safe for concurrent use; each Run call owns its job exclusively.
type Engine struct {
	store     JobStore
	docs      docstore.Store
	provider  llm.Provider
	retriever Retriever
	policy    retry.Policy
	logger    *slog.Logger
}

// New assembles a pipeline engine.
func New(store JobStore, docs docstore.Store, provider llm.Provider, retriever Retriever, policy retry.Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		docs:      docs,
		provider:  provider,
		retriever: retriever,
		policy:    policy,
		logger:    logger,
	}
}

// Run executes all stages for a job. The job must be in the queued state;
// Run moves it to processing and leaves it either completed or failed.
func (e *Engine) Run(ctx context.Context, job storage.Job) {
	log := e.logger.With("job_id", job.ID, "job_title", job.JobTitle)
	log.Info("starting evaluation pipeline")

	cvText, reportText, err := e.extractStage(ctx, job)
	if err != nil {
		e.fail(log, job.ID, storage.StageExtracting, err)
		return
	}

	resume, report, err := e.parseStage(ctx, job, cvText, reportText)
	if err != nil {
		e.fail(log, job.ID, storage.StageParsing, err)
		return
	}

	ground, err := e.retrieveStage(ctx, job)
	if err != nil {
		e.fail(log, job.ID, storage.StageRetrieving, err)
		return
	}

	resumeScore, reportScore, err := e.scoreStage(ctx, job, resume, report, ground)
	if err != nil {
		e.fail(log, job.ID, storage.StageScoring, err)
		return
	}

	if err := e.aggregateStage(ctx, job, resumeScore, reportScore); err != nil {
		e.fail(log, job.ID, storage.StageAggregating, err)
		return
	}

	log.Info("evaluation pipeline completed")
}

// extractStage loads both documents and converts them to plain text.
// Document failures are fatal for the job; there is nothing to retry.
func (e *Engine) extractStage(ctx context.Context, job storage.Job) (string, string, error) {
	if err := e.store.UpdateStage(job.ID, storage.StageExtracting, storage.StatusProcessing, ""); err != nil {
		return "", "", fmt.Errorf("entering extraction: %w", err)
	}

	var cvText, reportText string
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := e.extractDocument(job.CVFileID)
		if err != nil {
			return fmt.Errorf("cv document: %w", err)
		}
		cvText = text
		return nil
	})
	g.Go(func() error {
		text, err := e.extractDocument(job.ReportFileID)
		if err != nil {
			return fmt.Errorf("project report: %w", err)
		}
		reportText = text
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return cvText, reportText, nil
}

func (e *Engine) extractDocument(fileID string) (string, error) {
	data, err := e.docs.Open(fileID)
	if err != nil {
		return "", err
	}
	return extract.Text(data)
}

// parseStage turns raw text into structured documents via the model. Both
// parses run concurrently, each under the retry policy. Schema violations
// are logged but not fatal; scoring normalization handles missing fields.
func (e *Engine) parseStage(ctx context.Context, job storage.Job, cvText, reportText string) (map[string]any, map[string]any, error) {
	if err := e.store.UpdateStage(job.ID, storage.StageParsing, storage.StatusProcessing, ""); err != nil {
		return nil, nil, fmt.Errorf("entering parsing: %w", err)
	}

	var resume, report map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := retry.Do(gctx, e.policy, llm.IsRetryable, func(ctx context.Context) (map[string]any, error) {
			return e.provider.ParseResume(ctx, cvText)
		})
		if err != nil {
			return fmt.Errorf("parsing resume: %w", err)
		}
		if err := llm.ValidateResume(doc); err != nil {
			e.logger.Warn("parsed resume fails schema, continuing", "job_id", job.ID, "error", err)
		}
		resume = doc
		return nil
	})
	g.Go(func() error {
		doc, err := retry.Do(gctx, e.policy, llm.IsRetryable, func(ctx context.Context) (map[string]any, error) {
			return e.provider.ParseProjectReport(ctx, reportText)
		})
		if err != nil {
			return fmt.Errorf("parsing project report: %w", err)
		}
		if err := llm.ValidateReport(doc); err != nil {
			e.logger.Warn("parsed report fails schema, continuing", "job_id", job.ID, "error", err)
		}
		report = doc
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return resume, report, nil
}

// groundTruth holds the retrieved context fed into scoring prompts.
type groundTruth struct {
	CVRubric       string
	JobDescription string
	ProjectRubric  string
	CaseBrief      string
}

// retrieveStage fetches grounding context for each scoring call. An empty
// corpus yields empty context; only store or embedding failures are fatal.
func (e *Engine) retrieveStage(ctx context.Context, job storage.Job) (groundTruth, error) {
	if err := e.store.UpdateStage(job.ID, storage.StageRetrieving, storage.StatusProcessing, ""); err != nil {
		return groundTruth{}, fmt.Errorf("entering retrieval: %w", err)
	}

	queries := []struct {
		kind  string
		query string
		dest  *string
	}{
		{retrieval.KindCVRubric, "Scoring rubric for evaluating candidate resumes for role: " + job.JobTitle, nil},
		{retrieval.KindJobDescription, "Job description for role: " + job.JobTitle, nil},
		{retrieval.KindProjectRubric, "Scoring rubric for evaluating project deliverables for role: " + job.JobTitle, nil},
		{retrieval.KindCaseBrief, "Case study brief and requirements for role: " + job.JobTitle, nil},
	}

	var ground groundTruth
	queries[0].dest = &ground.CVRubric
	queries[1].dest = &ground.JobDescription
	queries[2].dest = &ground.ProjectRubric
	queries[3].dest = &ground.CaseBrief

	for _, q := range queries {
		chunks, err := e.retriever.Retrieve(ctx, q.query, q.kind)
		if err != nil {
			return groundTruth{}, fmt.Errorf("retrieving %s: %w", q.kind, err)
		}
		*q.dest = joinChunks(chunks)
	}
	return ground, nil
}

func joinChunks(chunks []retrieval.ContextChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

// scoreStage runs both rubric-guided scoring calls concurrently under the
// retry policy.
func (e *Engine) scoreStage(ctx context.Context, job storage.Job, resume, report map[string]any, ground groundTruth) (map[string]any, map[string]any, error) {
	if err := e.store.UpdateStage(job.ID, storage.StageScoring, storage.StatusProcessing, ""); err != nil {
		return nil, nil, fmt.Errorf("entering scoring: %w", err)
	}

	var resumeScore, reportScore map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		score, err := retry.Do(gctx, e.policy, llm.IsRetryable, func(ctx context.Context) (map[string]any, error) {
			return e.provider.ScoreResume(ctx, llm.ScoreResumeRequest{
				JobTitle:       job.JobTitle,
				ScoringRubric:  ground.CVRubric,
				JobDescription: ground.JobDescription,
				Resume:         resume,
			})
		})
		if err != nil {
			return fmt.Errorf("scoring resume: %w", err)
		}
		resumeScore = score
		return nil
	})
	g.Go(func() error {
		score, err := retry.Do(gctx, e.policy, llm.IsRetryable, func(ctx context.Context) (map[string]any, error) {
			return e.provider.ScoreProjectReport(ctx, llm.ScoreReportRequest{
				JobTitle:      job.JobTitle,
				ScoringRubric: ground.ProjectRubric,
				CaseBrief:     ground.CaseBrief,
				Report:        report,
			})
		})
		if err != nil {
			return fmt.Errorf("scoring project report: %w", err)
		}
		reportScore = score
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return resumeScore, reportScore, nil
}

// aggregateStage normalizes the raw scores, asks for an overall summary,
// and persists the result. A failed summary call degrades to an empty
// summary with the result marked partial; only persistence failures are
// fatal at this point.
func (e *Engine) aggregateStage(ctx context.Context, job storage.Job, resumeScore, reportScore map[string]any) error {
	if err := e.store.UpdateStage(job.ID, storage.StageAggregating, storage.StatusProcessing, ""); err != nil {
		return fmt.Errorf("entering aggregation: %w", err)
	}

	overall, err := retry.Do(ctx, e.policy, llm.IsRetryable, func(ctx context.Context) (string, error) {
		return e.provider.OverallSummary(ctx, resumeScore, reportScore)
	})
	summaryFailed := err != nil
	if summaryFailed {
		e.logger.Warn("overall summary unavailable, storing partial result", "job_id", job.ID, "error", err)
		overall = ""
	}

	summary := scoring.Normalize(resumeScore, reportScore, overall)
	if summaryFailed {
		summary.Partial = true
	}

	raw, err := json.Marshal(map[string]any{
		"resume_score": resumeScore,
		"report_score": reportScore,
	})
	if err != nil {
		return fmt.Errorf("encoding raw scores: %w", err)
	}

	result := storage.EvaluationResult{
		JobID:           job.ID,
		CVMatchRate:     summary.CVMatchRate,
		ProjectScore:    summary.ProjectScore,
		CVFeedback:      summary.CVFeedback,
		ProjectFeedback: summary.ProjectFeedback,
		OverallSummary:  summary.OverallSummary,
		RawResponse:     string(raw),
		Partial:         summary.Partial,
	}
	if err := e.store.SaveResult(result); err != nil && err != storage.ErrDuplicate {
		return fmt.Errorf("saving result: %w", err)
	}

	if err := e.store.UpdateStage(job.ID, storage.StageCompleted, storage.StatusCompleted, ""); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// fail marks the job failed at the given stage. The persisted message is
// what pollers see; the full error goes to the log.
func (e *Engine) fail(log *slog.Logger, jobID string, stage storage.Stage, cause error) {
	log.Error("pipeline stage failed", "stage", stage, "error", cause)
	msg := cause.Error()
	if err := e.store.UpdateStage(jobID, stage, storage.StatusFailed, msg); err != nil {
		log.Error("recording job failure", "stage", stage, "error", err)
	}
}
