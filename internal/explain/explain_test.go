package explain

import (
	"errors"
	"testing"

	"github.com/maru-labs/maru/internal/turn"
)

func TestBuild(t *testing.T) {
	state := &turn.State{
		AnswerType: turn.AnswerStatusMetric,
		Confidence: 0.92,
		Track:      turn.TrackQuality,
		Plan:       &turn.AnalystPlan{Intent: "weekly_progress"},
		Evidence: []turn.EvidenceItem{
			{Source: turn.SourceDB, Ref: "r1", FreshnessSeconds: 120},
			{Source: turn.SourceDB, Ref: "r2", FreshnessSeconds: 3600},
			{Source: turn.SourceGraph, Ref: "r3", FreshnessSeconds: 60},
		},
	}

	e := Build(state, []string{"metric_keyword"})

	if e.Intent != "weekly_progress" {
		t.Errorf("unexpected intent %s", e.Intent)
	}
	if e.EvidenceCounts[turn.SourceDB] != 2 || e.EvidenceCounts[turn.SourceGraph] != 1 {
		t.Errorf("unexpected counts %v", e.EvidenceCounts)
	}
	if len(e.SourcesUsed) != 2 || e.SourcesUsed[0] != turn.SourceDB {
		t.Errorf("expected deterministic source order, got %v", e.SourcesUsed)
	}
	if e.FreshnessSecond != 3600 {
		t.Errorf("freshness must reflect the stalest item, got %d", e.FreshnessSecond)
	}
	if len(e.RulesFired) != 1 {
		t.Errorf("rules fired lost: %v", e.RulesFired)
	}
}

func TestBuild_IntentFallsBackToAnswerType(t *testing.T) {
	state := &turn.State{AnswerType: turn.AnswerCasual}
	if e := Build(state, nil); e.Intent != string(turn.AnswerCasual) {
		t.Errorf("unexpected intent %s", e.Intent)
	}
}

func TestCheckShippable(t *testing.T) {
	withDB := &turn.State{
		AnswerType: turn.AnswerStatusMetric,
		Evidence:   []turn.EvidenceItem{{Source: turn.SourceDB, Ref: "r1"}},
	}
	if err := CheckShippable(withDB); err != nil {
		t.Errorf("db-backed status must ship: %v", err)
	}

	graphOnly := &turn.State{
		AnswerType: turn.AnswerStatusMetric,
		Evidence:   []turn.EvidenceItem{{Source: turn.SourceGraph, Ref: "r1"}},
	}
	if err := CheckShippable(graphOnly); !errors.Is(err, ErrUnsourcedStatus) {
		t.Errorf("expected ErrUnsourcedStatus, got %v", err)
	}

	howto := &turn.State{AnswerType: turn.AnswerHowtoPolicy}
	if err := CheckShippable(howto); err != nil {
		t.Errorf("non-status turns are unconstrained: %v", err)
	}
}
