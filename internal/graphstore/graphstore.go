// Package graphstore reads the project relationship graph from Neo4j.
// Access is read-only: the entity sync job that populates the graph is an
// external collaborator.
package graphstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var ErrGraphUnavailable = errors.New("graph store unavailable")

// Neighbor is one related entity with the relationship that links it.
type Neighbor struct {
	// Ref is the stable entity key (e.g. an issue key).
	Ref string `json:"ref"`

	// Kind is the node label (Issue, Person, Milestone, ...).
	Kind string `json:"kind"`

	// Relationship is the edge type connecting it to the queried entity.
	Relationship string `json:"relationship"`

	// Summary is a short human-readable description of the node.
	Summary string `json:"summary"`
}

// Reader retrieves graph neighborhoods by entity key.
type Reader interface {
	// Neighborhood returns entities related to the given entity within
	// the project, up to limit items.
	Neighborhood(ctx context.Context, projectID, entityRef string, limit int) ([]Neighbor, error)
}

// Neo4jReader implements Reader against a Neo4j driver.
type Neo4jReader struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jReader wraps an existing driver.
func NewNeo4jReader(driver neo4j.DriverWithContext) *Neo4jReader {
	return &Neo4jReader{driver: driver}
}

const neighborhoodQuery = `
MATCH (e {key: $ref, project_id: $project})-[r]-(n)
RETURN n.key AS ref, head(labels(n)) AS kind, type(r) AS relationship,
       coalesce(n.summary, '') AS summary
LIMIT $limit`

// Neighborhood runs a read-only relationship query by entity key.
func (g *Neo4jReader) Neighborhood(ctx context.Context, projectID, entityRef string, limit int) ([]Neighbor, error) {
	if limit <= 0 {
		limit = 10
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session,
		func(tx neo4j.ManagedTransaction) ([]Neighbor, error) {
			result, err := tx.Run(ctx, neighborhoodQuery, map[string]any{
				"ref":     entityRef,
				"project": projectID,
				"limit":   limit,
			})
			if err != nil {
				return nil, err
			}

			var neighbors []Neighbor
			for result.Next(ctx) {
				record := result.Record()
				neighbors = append(neighbors, Neighbor{
					Ref:          stringValue(record, "ref"),
					Kind:         stringValue(record, "kind"),
					Relationship: stringValue(record, "relationship"),
					Summary:      stringValue(record, "summary"),
				})
			}
			return neighbors, result.Err()
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraphUnavailable, err)
	}

	return records, nil
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}
