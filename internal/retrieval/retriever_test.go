package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/hanifmn/cveval/internal/retry"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFunc(ctx, text)
}

type mockVectorStore struct {
	insertFunc func(records []Record) error
	searchFunc func(vector []float32, topK int, kind string) ([]ScoredRecord, error)
	countFunc  func() (int, error)
}

func (m *mockVectorStore) Insert(records []Record) error {
	return m.insertFunc(records)
}

func (m *mockVectorStore) Search(vector []float32, topK int, kind string) ([]ScoredRecord, error) {
	return m.searchFunc(vector, topK, kind)
}

func (m *mockVectorStore) Count() (int, error) {
	return m.countFunc()
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.BaseDelay = 0
	p.MaxDelay = 0
	p.Jitter = 0
	return p
}

func TestRetrieveReturnsChunks(t *testing.T) {
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}
	store := &mockVectorStore{
		countFunc: func() (int, error) { return 2, nil },
		searchFunc: func(vector []float32, topK int, kind string) ([]ScoredRecord, error) {
			if kind != KindCVRubric {
				t.Errorf("expected kind %s, got %s", KindCVRubric, kind)
			}
			if topK != 3 {
				t.Errorf("expected topK 3, got %d", topK)
			}
			return []ScoredRecord{
				{Record: Record{ID: "a", Kind: kind, Text: "technical skills weigh heaviest"}, Score: 0.95},
				{Record: Record{ID: "b", Kind: kind, Text: "experience level counts"}, Score: 0.8},
			}, nil
		},
	}

	r := NewRetriever(embedder, store, fastPolicy(), 3, nil)
	chunks, err := r.Retrieve(context.Background(), "backend engineer rubric", KindCVRubric)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "technical skills weigh heaviest" {
		t.Errorf("unexpected first chunk text: %q", chunks[0].Text)
	}
	if chunks[0].Score < chunks[1].Score {
		t.Errorf("chunks not ordered by score")
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			t.Fatal("embed should not be called against an empty corpus")
			return nil, nil
		},
	}
	store := &mockVectorStore{
		countFunc: func() (int, error) { return 0, nil },
	}

	r := NewRetriever(embedder, store, fastPolicy(), 3, nil)
	chunks, err := r.Retrieve(context.Background(), "anything", KindCaseBrief)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestRetrieveRetriesTransientEmbedErrors(t *testing.T) {
	calls := 0
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			calls++
			if calls < 2 {
				return nil, context.DeadlineExceeded
			}
			return []float32{1}, nil
		},
	}
	store := &mockVectorStore{
		countFunc: func() (int, error) { return 1, nil },
		searchFunc: func(vector []float32, topK int, kind string) ([]ScoredRecord, error) {
			return []ScoredRecord{{Record: Record{ID: "a", Text: "x"}, Score: 1}}, nil
		},
	}

	r := NewRetriever(embedder, store, fastPolicy(), 3, nil)
	chunks, err := r.Retrieve(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 embed calls, got %d", calls)
	}
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestRetrieveEmbedExhausted(t *testing.T) {
	embedErr := context.DeadlineExceeded
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, embedErr
		},
	}
	store := &mockVectorStore{
		countFunc: func() (int, error) { return 1, nil },
	}

	r := NewRetriever(embedder, store, fastPolicy(), 3, nil)
	_, err := r.Retrieve(context.Background(), "q", "")
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("expected ExhaustedError, got %v", err)
	}
}
