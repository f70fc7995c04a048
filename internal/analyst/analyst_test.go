package analyst

import (
	"context"
	"errors"
	"testing"

	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/turn"
)

func metricState() *turn.State {
	return &turn.State{
		ProjectID:       "p1",
		AnswerType:      turn.AnswerStatusMetric,
		NormalizedQuery: "이번주 진행률 알려줘",
		Track:           turn.TrackFast,
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "Here:\n```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"prose around", `plan below {"x":"y"} thanks`, `{"x":"y"}`, true},
		{"brace in string", `{"s":"}{"}`, `{"s":"}{"}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"no object", `no json here`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlan_ValidModelOutput(t *testing.T) {
	model := llm.NewMock(`{"intent":"weekly_progress","request_type":"STATUS",` +
		`"track":"QUALITY","required_sources":["db"],"scope":{"project_id":"ignored"}}`)
	a := New(model)

	plan := a.Plan(context.Background(), metricState())

	if plan.Intent != "weekly_progress" {
		t.Errorf("unexpected intent %s", plan.Intent)
	}
	if plan.Scope.ProjectID != "p1" {
		t.Errorf("project id must be injected from the turn, got %s", plan.Scope.ProjectID)
	}
	if !plan.Requires(turn.SourceDB) {
		t.Error("expected db in required sources")
	}
}

func TestPlan_ForbiddenSourceRemoved(t *testing.T) {
	// Model asks for doc evidence on a STATUS turn; the gate forbids it.
	model := llm.NewMock(`{"intent":"weekly_progress","request_type":"STATUS",` +
		`"track":"QUALITY","required_sources":["db","doc"]}`)
	a := New(model)

	plan := a.Plan(context.Background(), metricState())

	if plan.Requires(turn.SourceDoc) {
		t.Error("doc must be removed from a STATUS plan")
	}
	if !plan.Requires(turn.SourceDB) {
		t.Error("db must survive conflict resolution")
	}
	if !plan.Forbids(turn.SourceDoc) {
		t.Error("doc must be listed as forbidden")
	}
}

func TestPlan_FastPromotedToQualityForStatus(t *testing.T) {
	model := llm.NewMock(`{"intent":"weekly_progress","request_type":"STATUS",` +
		`"track":"FAST","required_sources":["db"]}`)
	a := New(model)

	plan := a.Plan(context.Background(), metricState())

	if plan.Track != turn.TrackQuality {
		t.Errorf("STATUS demands citations; expected QUALITY, got %s", plan.Track)
	}
}

func TestPlan_FallbackOnModelFailure(t *testing.T) {
	a := New(llm.NewMockWithError(errors.New("backend down")))

	plan := a.Plan(context.Background(), metricState())

	if plan.RequestType != turn.RequestStatus {
		t.Errorf("fallback should derive STATUS, got %s", plan.RequestType)
	}
	if !plan.Requires(turn.SourceDB) {
		t.Error("fallback STATUS plan must require db")
	}
	if plan.Track != turn.TrackQuality {
		t.Errorf("fallback STATUS plan must run QUALITY, got %s", plan.Track)
	}
}

func TestPlan_FallbackOnGarbageOutput(t *testing.T) {
	a := New(llm.NewMock("I cannot answer in JSON, sorry."))

	plan := a.Plan(context.Background(), metricState())

	if plan == nil {
		t.Fatal("fallback plan expected")
	}
	if plan.Scope.ProjectID != "p1" {
		t.Errorf("fallback must scope to the project, got %q", plan.Scope.ProjectID)
	}
}

func TestShouldSkipRetrieval(t *testing.T) {
	casual := &turn.AnalystPlan{RequestType: turn.RequestCasual}
	if !ShouldSkipRetrieval(casual) {
		t.Error("casual plans skip retrieval")
	}

	clarify := &turn.AnalystPlan{
		RequestType:            turn.RequestMixed,
		ClarificationQuestions: []string{"어떤 현황이 궁금하신가요?"},
	}
	if !ShouldSkipRetrieval(clarify) {
		t.Error("clarification plans skip retrieval")
	}

	status := &turn.AnalystPlan{RequestType: turn.RequestStatus}
	if ShouldSkipRetrieval(status) {
		t.Error("status plans must retrieve")
	}
}

func TestPlan_RequiredForbiddenDisjoint(t *testing.T) {
	model := llm.NewMock(`{"intent":"x","request_type":"STATUS","required_sources":["db","doc","graph"]}`)
	a := New(model)

	plan := a.Plan(context.Background(), metricState())

	for _, s := range plan.RequiredSources {
		if plan.Forbids(s) {
			t.Errorf("source %s is both required and forbidden", s)
		}
	}
}
