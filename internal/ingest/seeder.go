// Package ingest seeds the ground-truth corpus: rubrics, job
// descriptions, and case briefs are chunked, embedded, and written to the
// vector store so retrieval has something to ground scoring prompts on.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/retry"
)

// embedConcurrency bounds parallel embedding calls during seeding so a
// large corpus does not trip API rate limits.
const embedConcurrency = 4

// minChunkRunes folds very short paragraphs into their neighbor so
// headings do not become standalone chunks.
const minChunkRunes = 40

// Seeder chunks documents and writes their embeddings to the vector store.
type Seeder struct {
	embedder llm.Embedder
	store    retrieval.VectorStore
	policy   retry.Policy
	logger   *slog.Logger
}

// NewSeeder assembles a Seeder.
func NewSeeder(embedder llm.Embedder, store retrieval.VectorStore, policy retry.Policy, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{embedder: embedder, store: store, policy: policy, logger: logger}
}

// Seed chunks the document, embeds every chunk, and inserts the records
// in a single transaction. Returns the number of chunks written. An empty
// document seeds nothing and is not an error.
func (s *Seeder) Seed(ctx context.Context, sourceID, kind, text string) (int, error) {
	chunks := chunk(text)
	if len(chunks) == 0 {
		s.logger.Warn("document has no content to seed", "source_id", sourceID, "kind", kind)
		return 0, nil
	}

	records := make([]retrieval.Record, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vector, err := retry.Do(gctx, s.policy, llm.IsRetryable, func(ctx context.Context) ([]float32, error) {
				return s.embedder.Embed(ctx, c)
			})
			if err != nil {
				return fmt.Errorf("embedding chunk %d of %s: %w", i, sourceID, err)
			}
			records[i] = retrieval.Record{
				ID:        uuid.NewString(),
				SourceID:  sourceID,
				Kind:      kind,
				Text:      c,
				Embedding: vector,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.store.Insert(records); err != nil {
		return 0, fmt.Errorf("inserting %d chunks for %s: %w", len(records), sourceID, err)
	}

	s.logger.Info("seeded document", "source_id", sourceID, "kind", kind, "chunks", len(records))
	return len(records), nil
}

// chunk splits a document on blank lines, folding fragments shorter than
// minChunkRunes into the preceding chunk.
func chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(chunks) > 0 && len([]rune(p)) < minChunkRunes {
			chunks[len(chunks)-1] += "\n\n" + p
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks
}
