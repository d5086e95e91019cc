// Package vector is the semantic memory interface the drafting engine
// queries for context, plus an in-memory implementation for tests and
// local runs. Embeddings are supplied by the caller; the store only
// indexes and ranks them.
package vector

import "context"

// Kinds of indexed payloads.
const (
	KindCharacter     = "character"
	KindWorldbuilding = "worldbuilding"
	KindScene         = "scene"
)

// Document is one indexed payload.
type Document struct {
	ID        string
	ProjectID string
	Kind      string
	Text      string
	Payload   map[string]any
	Embedding []float32
}

// Result is a search hit with its cosine similarity.
type Result struct {
	Document
	Score float64
}

// Store indexes documents per project and ranks them by similarity.
type Store interface {
	Store(ctx context.Context, doc Document) error
	// Search returns up to limit documents of the given kind with
	// similarity to the query embedding of at least minScore, best first.
	Search(ctx context.Context, projectID, kind string, query []float32, limit int, minScore float64) ([]Result, error)
	// Scroll lists documents of a kind in insertion order.
	Scroll(ctx context.Context, projectID, kind string, limit int) ([]Document, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
