package docstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// projectIDPattern limits filter interpolation to identifier-safe ids.
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// searchExpr builds the project filter expression. The id is interpolated
// into the expression text, so anything beyond identifier characters is
// rejected outright.
func searchExpr(projectID string) (string, error) {
	if !projectIDPattern.MatchString(projectID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectID, projectID)
	}
	return fmt.Sprintf(`project_id == "%s" or project_id == ""`, projectID), nil
}

// MilvusConfig holds connection and collection settings.
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string
	Dimension      int // must match the embedder dimension

	// HNSW search parameter.
	Ef int
}

// DefaultMilvusConfig returns production defaults.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "maru_chunks",
		Dimension:      3072,
		Ef:             64,
	}
}

// MilvusStore implements Searcher over a Milvus chunk collection.
// Indexing is owned by the document parser service; the core only reads.
type MilvusStore struct {
	client   client.Client
	embedder Embedder
	config   MilvusConfig
}

// NewMilvusStore connects to Milvus. The collection must already exist.
func NewMilvusStore(ctx context.Context, config MilvusConfig, embedder Embedder) (*MilvusStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if config.Dimension <= 0 || config.Dimension != embedder.Dimension() {
		return nil, fmt.Errorf("dimension mismatch: collection %d, embedder %d", config.Dimension, embedder.Dimension())
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &MilvusStore{client: c, embedder: embedder, config: config}, nil
}

// Search embeds the query and runs top-K similarity search restricted to the
// project's chunks.
func (m *MilvusStore) Search(ctx context.Context, query string, topK int, projectID string) ([]Chunk, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 5
	}

	vector, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding failed: %w", ErrSearchFailed, err)
	}

	expr, err := searchExpr(projectID)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(m.config.Ef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	vectors := []entity.Vector{entity.FloatVector(vector)}
	outputFields := []string{"chunk_id", "document_id", "text", "updated_at", "is_policy"}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil,
		expr,
		outputFields,
		vectors,
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []Chunk{}, nil
	}

	chunks := make([]Chunk, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		chunk := Chunk{Confidence: float64(results[0].Scores[i])}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case "chunk_id":
				chunk.ChunkID = field.(*entity.ColumnVarChar).Data()[i]
			case "document_id":
				chunk.DocumentID = field.(*entity.ColumnVarChar).Data()[i]
			case "text":
				chunk.Text = field.(*entity.ColumnVarChar).Data()[i]
			case "updated_at":
				chunk.UpdatedAt = time.Unix(field.(*entity.ColumnInt64).Data()[i], 0)
			case "is_policy":
				chunk.IsPolicy = field.(*entity.ColumnBool).Data()[i]
			}
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Close releases the Milvus connection.
func (m *MilvusStore) Close() error {
	return m.client.Close()
}
