// Package retrieval provides embedding-based lookup of ground-truth
// reference material: scoring rubrics, job descriptions, and case-study
// briefs seeded by the ingestion path.
package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity; an ANN-capable backend can replace it without touching the
// retriever or the pipeline.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the vector,
	// ordered by similarity descending. kind optionally restricts the
	// search to one document kind; empty means all kinds.
	Search(vector []float32, topK int, kind string) ([]ScoredRecord, error)

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record is one reference chunk with its embedding.
type Record struct {
	ID        string
	SourceID  string // ingestion document this chunk came from
	Kind      string // e.g. "cv_rubric", "project_rubric", "job_description", "case_brief"
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// ContextChunk is a retrieved reference fragment handed to scoring prompts.
type ContextChunk struct {
	ID    string  `json:"id"`
	Kind  string  `json:"kind"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}
