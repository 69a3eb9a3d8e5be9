// Package llm abstracts the language-model collaborator: structured
// parsing of raw document text, rubric-guided scoring, and query
// embeddings. The pipeline depends only on these interfaces; the Gemini
// implementation is selected at the composition point in cmd.
package llm

import "context"

// Provider exposes the calls the evaluation pipeline makes against the
// model. All responses are semi-trusted JSON decoded leniently; callers
// run the payloads through scoring normalization before persisting anything.
type Provider interface {
	// ParseResume extracts a structured resume from raw CV text.
	ParseResume(ctx context.Context, resumeText string) (map[string]any, error)

	// ParseProjectReport extracts a structured report from raw project text.
	ParseProjectReport(ctx context.Context, reportText string) (map[string]any, error)

	// ScoreResume scores a parsed resume against rubric and role context.
	ScoreResume(ctx context.Context, req ScoreResumeRequest) (map[string]any, error)

	// ScoreProjectReport scores a parsed report against rubric and brief.
	ScoreProjectReport(ctx context.Context, req ScoreReportRequest) (map[string]any, error)

	// OverallSummary produces a short qualitative summary of both scores.
	OverallSummary(ctx context.Context, resumeScore, reportScore map[string]any) (string, error)
}

// Embedder generates embeddings for retrieval queries and ingestion.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoreResumeRequest carries the context for a resume scoring call.
type ScoreResumeRequest struct {
	JobTitle       string
	ScoringRubric  string
	JobDescription string
	Resume         map[string]any
}

// ScoreReportRequest carries the context for a project-report scoring call.
type ScoreReportRequest struct {
	JobTitle      string
	ScoringRubric string
	CaseBrief     string
	Report        map[string]any
}
