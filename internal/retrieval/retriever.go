package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/retry"
)

// Ground-truth document kinds seeded by ingestion and filtered on during
// retrieval.
const (
	KindCVRubric       = "cv_rubric"
	KindProjectRubric  = "project_rubric"
	KindJobDescription = "job_description"
	KindCaseBrief      = "case_brief"
)

// Retriever embeds query text and searches the vector store for the most
// relevant ground-truth chunks. Embedding calls go through the retry
// policy since they hit the same rate-limited API as generation.
type Retriever struct {
	embedder llm.Embedder
	store    VectorStore
	policy   retry.Policy
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. topK values below 1 fall back to 3.
func NewRetriever(embedder llm.Embedder, store VectorStore, policy retry.Policy, topK int, logger *slog.Logger) *Retriever {
	if topK < 1 {
		topK = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		policy:   policy,
		topK:     topK,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the top-K most similar chunks of
// the given kind. An empty corpus yields an empty slice, not an error;
// downstream prompts degrade to scoring without grounding context.
func (r *Retriever) Retrieve(ctx context.Context, query, kind string) ([]ContextChunk, error) {
	count, err := r.store.Count()
	if err != nil {
		return nil, fmt.Errorf("counting vectors: %w", err)
	}
	if count == 0 {
		r.logger.Warn("vector store is empty, retrieval returns no context", "kind", kind)
		return nil, nil
	}

	vector, err := retry.Do(ctx, r.policy, llm.IsRetryable, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(vector, r.topK, kind)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:    s.Record.ID,
			Kind:  s.Record.Kind,
			Text:  s.Record.Text,
			Score: s.Score,
		}
	}
	return chunks, nil
}
