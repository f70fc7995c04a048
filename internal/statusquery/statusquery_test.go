package statusquery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maru-labs/maru/internal/turn"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := LoadRegistry()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	return reg
}

func TestLoadRegistry(t *testing.T) {
	reg := mustRegistry(t)

	if !reg.HasMetric("progress_rate") {
		t.Error("expected progress_rate in registry")
	}
	if !reg.HasFilter("status") {
		t.Error("expected status filter in registry")
	}
	if !reg.HasScope("project") {
		t.Error("expected project scope in registry")
	}
	if reg.HasMetric("drop_table") {
		t.Error("unexpected metric accepted")
	}
}

func TestPlan_Validate(t *testing.T) {
	reg := mustRegistry(t)

	valid := &Plan{
		Scope:     "project",
		ProjectID: "p1",
		Filters:   map[string]string{"status": "IN_PROGRESS"},
		Output:    []string{"progress_rate"},
	}
	if err := valid.Validate(reg); err != nil {
		t.Errorf("expected valid plan, got %v", err)
	}

	tests := []struct {
		name string
		plan Plan
		want error
	}{
		{"unknown metric", Plan{Scope: "project", ProjectID: "p1", Output: []string{"secret_dump"}}, ErrUnknownMetric},
		{"unknown filter", Plan{Scope: "project", ProjectID: "p1", Filters: map[string]string{"password": "x"}, Output: []string{"velocity"}}, ErrUnknownFilter},
		{"unknown scope", Plan{Scope: "galaxy", ProjectID: "p1", Output: []string{"velocity"}}, ErrUnknownScope},
		{"no output", Plan{Scope: "project", ProjectID: "p1"}, ErrEmptyOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.plan.Validate(reg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPlan_SerializeRoundTrip(t *testing.T) {
	reg := mustRegistry(t)
	plan := &Plan{
		Scope:     "project",
		ProjectID: "p1",
		Filters:   map[string]string{"status": "DONE", "priority": "HIGH"},
		Output:    []string{"progress_rate", "velocity"},
	}

	before, err := plan.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	if err := plan.Validate(reg); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	after, err := plan.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	if before != after {
		t.Errorf("validation changed serialization:\n%s\n%s", before, after)
	}
}

func TestWeekBounds_Law(t *testing.T) {
	references := []time.Time{
		time.Date(2025, 6, 2, 0, 0, 0, 0, kst),   // Monday midnight KST
		time.Date(2025, 6, 4, 15, 30, 0, 0, kst), // mid-week
		time.Date(2025, 6, 8, 23, 59, 59, 0, kst), // Sunday night
		time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC), // UTC reference crossing the date line
	}

	for _, ref := range references {
		start, end := WeekBounds(ref)

		if start.After(ref) {
			t.Errorf("week_start %v is after reference %v", start, ref)
		}
		if !ref.Before(end) {
			t.Errorf("reference %v is not before week_end %v", ref, end)
		}
		if end.Sub(start) != 7*24*time.Hour {
			t.Errorf("week is not exactly 7 days: %v", end.Sub(start))
		}
		if start.Weekday() != time.Monday {
			t.Errorf("week does not start on Monday: %v", start.Weekday())
		}
	}
}

// fakeRow implements pgx.Row for executor tests.
type fakeRow struct {
	value float64
	count int
	err   error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) >= 2 {
		if v, ok := dest[0].(*float64); ok {
			*v = r.value
		}
		if c, ok := dest[1].(*int); ok {
			*c = r.count
		}
	}
	return nil
}

type fakeQuerier struct {
	row     *fakeRow
	lastSQL string
	args    []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	q.args = args
	return q.row
}

func TestExecutor_ProgressMetric(t *testing.T) {
	reg := mustRegistry(t)
	db := &fakeQuerier{row: &fakeRow{value: 42.5, count: 17}}
	exec, err := NewExecutor(reg, db)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}

	plan := &Plan{Scope: "project", ProjectID: "p1", Output: []string{"progress_rate"}}
	ref := time.Date(2025, 6, 4, 12, 0, 0, 0, kst)

	result, err := exec.Execute(context.Background(), plan, ref)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if result.ErrorCode != turn.ErrCodeNone {
		t.Errorf("expected NONE, got %s", result.ErrorCode)
	}
	if len(result.Metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(result.Metrics))
	}

	m := result.Metrics[0]
	if m.Value != 42.5 || m.JudgmentCount != 17 {
		t.Errorf("unexpected metric result: %+v", m)
	}
	if !strings.HasPrefix(m.Ref, "db:p1:progress_rate:") {
		t.Errorf("unexpected evidence ref: %s", m.Ref)
	}

	// Week bounds bind as parameters, not literals.
	if len(db.args) != 3 {
		t.Fatalf("expected 3 bound args, got %d", len(db.args))
	}
	if db.args[0] != "p1" {
		t.Errorf("expected project id bound first, got %v", db.args[0])
	}
}

func TestExecutor_FilterSynthesis(t *testing.T) {
	reg := mustRegistry(t)
	db := &fakeQuerier{row: &fakeRow{value: 3, count: 3}}
	exec, _ := NewExecutor(reg, db)

	plan := &Plan{
		Scope:     "project",
		ProjectID: "p1",
		Filters:   map[string]string{"assignee": "kim"},
		Output:    []string{"open_issue_count"},
	}

	if _, err := exec.Execute(context.Background(), plan, time.Now()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if !strings.Contains(db.lastSQL, "assignee = $4") {
		t.Errorf("expected parameterised filter clause, got: %s", db.lastSQL)
	}
	if db.args[3] != "kim" {
		t.Errorf("expected filter value bound as parameter, got %v", db.args[3])
	}
	if strings.Contains(db.lastSQL, "kim") {
		t.Error("filter value must never be concatenated into SQL")
	}
}

func TestExecutor_DBFailure(t *testing.T) {
	reg := mustRegistry(t)
	db := &fakeQuerier{row: &fakeRow{err: errors.New("connection reset")}}
	exec, _ := NewExecutor(reg, db)

	plan := &Plan{Scope: "project", ProjectID: "p1", Output: []string{"progress_rate"}}
	result, err := exec.Execute(context.Background(), plan, time.Now())

	if err == nil {
		t.Fatal("expected error")
	}
	if result.ErrorCode != turn.ErrCodeDBFailure {
		t.Errorf("expected DB_FAILURE, got %s", result.ErrorCode)
	}
}

func TestExecutor_EmptyResult(t *testing.T) {
	reg := mustRegistry(t)
	db := &fakeQuerier{row: &fakeRow{value: 0, count: 0}}
	exec, _ := NewExecutor(reg, db)

	plan := &Plan{Scope: "project", ProjectID: "p1", Output: []string{"completed_count"}}
	result, err := exec.Execute(context.Background(), plan, time.Now())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if result.ErrorCode != turn.ErrCodeEmpty {
		t.Errorf("expected EMPTY for zero judgment count, got %s", result.ErrorCode)
	}
}

func TestExecutor_RejectsUnknownBeforeSQL(t *testing.T) {
	reg := mustRegistry(t)
	db := &fakeQuerier{row: &fakeRow{value: 1, count: 1}}
	exec, _ := NewExecutor(reg, db)

	plan := &Plan{Scope: "project", ProjectID: "p1", Output: []string{"pg_sleep"}}
	if _, err := exec.Execute(context.Background(), plan, time.Now()); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
	if db.lastSQL != "" {
		t.Error("no SQL may be issued for a rejected plan")
	}
}
