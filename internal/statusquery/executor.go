package statusquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maru-labs/maru/internal/turn"
)

// Querier is the read-only database contract the executor needs.
// *pgxpool.Pool satisfies it; tests fake pgx.Row directly.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MetricResult is one computed metric with its evidence anchor.
type MetricResult struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`

	// JudgmentCount is the number of rows the value was judged from;
	// degradation logic downgrades answers computed from thin samples.
	JudgmentCount int `json:"judgment_count"`

	// Ref is the stable evidence key for this computation.
	Ref string `json:"ref"`

	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
}

// Result is the executor outcome. ErrorCode is NONE, EMPTY, or DB_FAILURE;
// downstream stages read the code, never error strings.
type Result struct {
	Metrics   []MetricResult
	ErrorCode turn.ErrorCode
}

// Executor validates plans against the registry and runs parameterised SQL.
// It never concatenates values into SQL and never fabricates rows.
type Executor struct {
	registry *Registry
	db       Querier
}

// NewExecutor creates a status query executor.
func NewExecutor(registry *Registry, db Querier) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if db == nil {
		return nil, errors.New("database querier is required")
	}
	return &Executor{registry: registry, db: db}, nil
}

// Execute validates the plan and computes every requested metric. The
// reference time anchors the KST week when the plan's range is unset.
func (e *Executor) Execute(ctx context.Context, plan *Plan, reference time.Time) (*Result, error) {
	if err := plan.Validate(e.registry); err != nil {
		return nil, err
	}

	start, end := plan.TimeRange.Start, plan.TimeRange.End
	if plan.TimeRange.IsZero() {
		start, end = WeekBounds(reference)
	}

	result := &Result{ErrorCode: turn.ErrCodeNone}
	sawRows := false

	for _, metric := range plan.Output {
		def := e.registry.Metrics[metric]
		query, args := e.synthesize(def, plan, start, end)

		var value float64
		var judgmentCount int
		err := e.db.QueryRow(ctx, query, args...).Scan(&value, &judgmentCount)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return &Result{ErrorCode: turn.ErrCodeDBFailure}, fmt.Errorf("metric %s query failed: %w", metric, err)
		}

		if judgmentCount > 0 {
			sawRows = true
		}

		result.Metrics = append(result.Metrics, MetricResult{
			Metric:        metric,
			Value:         value,
			Unit:          def.Unit,
			JudgmentCount: judgmentCount,
			Ref:           metricRef(plan.ProjectID, metric, start),
			WeekStart:     start,
			WeekEnd:       end,
		})
	}

	if !sawRows {
		result.ErrorCode = turn.ErrCodeEmpty
	}

	return result, nil
}

// synthesize builds the parameterised query from the whitelisted template.
// Filter columns come from the whitelist; values always bind as parameters.
func (e *Executor) synthesize(def MetricDef, plan *Plan, start, end time.Time) (string, []any) {
	query := def.SQL
	args := []any{plan.ProjectID, start, end}

	for _, column := range e.registry.Filters {
		value, ok := plan.Filters[column]
		if !ok {
			continue
		}
		args = append(args, value)
		query = fmt.Sprintf("%s AND %s = $%d", query, column, len(args))
	}

	return query, args
}

// metricRef builds the stable evidence key for a metric computation.
func metricRef(projectID, metric string, weekStart time.Time) string {
	return fmt.Sprintf("db:%s:%s:%s", projectID, metric, weekStart.Format("2006-01-02"))
}
