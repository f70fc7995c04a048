// Package docstore provides vector search over policy and knowledge
// documents. Chunks live in a Milvus collection keyed by chunk ID with a
// project filter; query embeddings come from OpenAI.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Common errors for document retrieval.
var (
	ErrConnectionFailed = errors.New("failed to connect to vector store")
	ErrSearchFailed     = errors.New("vector search failed")
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrInvalidProjectID = errors.New("project id contains unsafe characters")
)

// Chunk is one retrieved document fragment with its similarity confidence.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`

	// IsPolicy marks chunks originating from policy documents.
	IsPolicy bool `json:"is_policy"`
}

// Searcher is the vector search contract the retrieval dispatcher needs.
type Searcher interface {
	// Search returns the topK most similar chunks for the query,
	// restricted to the given project.
	Search(ctx context.Context, query string, topK int, projectID string) ([]Chunk, error)

	// Close releases resources and closes connections.
	Close() error
}

// Embedder generates a query embedding vector.
type Embedder interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
