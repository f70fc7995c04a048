// Package retrieval executes the analyst plan against the data backends:
// the deterministic status-query executor for db evidence, Neo4j for graph
// neighborhoods, and vector search for documents. Independent retrievals
// fan out in parallel and join under the turn deadline; doc and graph
// results merge through a weighted reciprocal-rank-fusion blend.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maru-labs/maru/internal/docstore"
	"github.com/maru-labs/maru/internal/graphstore"
	"github.com/maru-labs/maru/internal/statusquery"
	"github.com/maru-labs/maru/internal/turn"
)

// StatusExecutor is the db retrieval contract.
type StatusExecutor interface {
	Execute(ctx context.Context, plan *statusquery.Plan, reference time.Time) (*statusquery.Result, error)
}

// Config holds dispatcher tunables.
type Config struct {
	TopK            int
	ConfidenceFloor float64
	RRFConstant     float64
	DocWeight       float64
	GraphWeight     float64
}

// DefaultConfig returns production retrieval settings.
func DefaultConfig() Config {
	return Config{
		TopK:            5,
		ConfidenceFloor: 0.35,
		RRFConstant:     60,
		DocWeight:       1.0,
		GraphWeight:     0.8,
	}
}

// Outcome is the dispatcher result for one turn.
type Outcome struct {
	Evidence  []turn.EvidenceItem
	Metrics   []statusquery.MetricResult
	ErrorCode turn.ErrorCode
}

// Dispatcher runs retrieval per the plan's required sources. Any backend may
// be nil; its source is then skipped (degraded operation).
type Dispatcher struct {
	config Config
	status StatusExecutor
	graph  graphstore.Reader
	docs   docstore.Searcher

	now func() time.Time
}

// NewDispatcher wires the retrieval backends.
func NewDispatcher(config Config, status StatusExecutor, graph graphstore.Reader, docs docstore.Searcher) *Dispatcher {
	return &Dispatcher{
		config: config,
		status: status,
		graph:  graph,
		docs:   docs,
		now:    time.Now,
	}
}

// Dispatch executes every required source in parallel and appends evidence in
// retrieval-completion order. The db error code (DB_FAILURE or EMPTY) wins
// over doc/graph emptiness because STATUS answers depend on it.
func (d *Dispatcher) Dispatch(ctx context.Context, state *turn.State) (*Outcome, error) {
	plan := state.Plan
	if plan == nil {
		return nil, fmt.Errorf("retrieval requires a validated analyst plan")
	}

	outcome := &Outcome{ErrorCode: turn.ErrCodeNone}

	var (
		dbResult   *statusquery.Result
		docChunks  []docstore.Chunk
		graphItems []graphstore.Neighbor
	)

	g, gctx := errgroup.WithContext(ctx)

	if plan.Requires(turn.SourceDB) && d.status != nil {
		g.Go(func() error {
			sq := d.statusPlan(state)
			result, err := d.status.Execute(gctx, sq, d.now())
			if result != nil {
				dbResult = result
			}
			if err != nil && result != nil && result.ErrorCode == turn.ErrCodeDBFailure {
				// Structured code carries the failure; do not abort
				// the remaining retrievals.
				return nil
			}
			return err
		})
	}

	if plan.Requires(turn.SourceGraph) && d.graph != nil && plan.Scope.Entity != "" {
		g.Go(func() error {
			neighbors, err := d.graph.Neighborhood(gctx, plan.Scope.ProjectID, plan.Scope.Entity, d.config.TopK)
			if err != nil {
				// Graph enriches but never blocks an answer.
				return nil
			}
			graphItems = neighbors
			return nil
		})
	}

	wantsDocs := (plan.Requires(turn.SourceDoc) || plan.Requires(turn.SourcePolicy)) && d.docs != nil
	if wantsDocs {
		g.Go(func() error {
			chunks, err := d.docs.Search(gctx, state.NormalizedQuery, d.config.TopK, plan.Scope.ProjectID)
			if err != nil {
				return fmt.Errorf("doc search failed: %w", err)
			}
			docChunks = chunks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			outcome.ErrorCode = turn.ErrCodeTimeout
			return outcome, nil
		}
		return nil, err
	}

	if dbResult != nil {
		outcome.Metrics = dbResult.Metrics
		outcome.ErrorCode = dbResult.ErrorCode
		for _, m := range dbResult.Metrics {
			outcome.Evidence = append(outcome.Evidence, turn.EvidenceItem{
				Source:     turn.SourceDB,
				Ref:        m.Ref,
				Payload:    fmt.Sprintf("%s=%.1f (n=%d)", m.Metric, m.Value, m.JudgmentCount),
				Confidence: 1.0,
			})
		}
	}

	outcome.Evidence = append(outcome.Evidence, d.blend(docChunks, graphItems)...)

	if outcome.ErrorCode == turn.ErrCodeNone && len(outcome.Evidence) == 0 {
		outcome.ErrorCode = turn.ErrCodeEmpty
	}

	return outcome, nil
}

// statusPlan derives the whitelisted status query from the turn state.
func (d *Dispatcher) statusPlan(state *turn.State) *statusquery.Plan {
	metrics := metricsForAnswerType(state.AnswerType)

	var filters map[string]string
	sq := &statusquery.Plan{
		Scope:     "project",
		ProjectID: state.Plan.Scope.ProjectID,
		Filters:   filters,
		Output:    metrics,
	}
	if !state.Plan.Scope.TimeRange.Start.IsZero() {
		sq.TimeRange = statusquery.PlanTimeRange{
			Start: state.Plan.Scope.TimeRange.Start,
			End:   state.Plan.Scope.TimeRange.End,
		}
	}
	return sq
}

// metricsForAnswerType maps the answer type to its registry metrics.
func metricsForAnswerType(at turn.AnswerType) []string {
	switch at {
	case turn.AnswerStatusMetric:
		return []string{"progress_rate", "velocity"}
	case turn.AnswerStatusList:
		return []string{"open_issue_count", "completed_count"}
	case turn.AnswerStatusDrilldown:
		return []string{"blocker_count", "open_issue_count"}
	default:
		return []string{"progress_rate"}
	}
}
