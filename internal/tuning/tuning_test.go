package tuning

import "testing"

func TestThresholdFor_UnpromotedGroupAbsent(t *testing.T) {
	tuner := NewTuner(0.70)
	if _, ok := tuner.ThresholdFor("progress"); ok {
		t.Error("no threshold should exist before promotion")
	}
}

func TestRecommendations_NeedEnoughSignal(t *testing.T) {
	tuner := NewTuner(0.70)
	for i := 0; i < 5; i++ {
		tuner.RecordFalsePositive("progress")
	}

	if recs := tuner.Recommendations(); len(recs) != 0 {
		t.Errorf("5 signals are below the floor, got %+v", recs)
	}
}

func TestRecommendations_FalsePositivesRaiseThreshold(t *testing.T) {
	tuner := NewTuner(0.70)
	for i := 0; i < 12; i++ {
		tuner.RecordFalsePositive("progress")
	}

	recs := tuner.Recommendations()
	if len(recs) != 1 {
		t.Fatalf("expected one recommendation, got %d", len(recs))
	}
	if recs[0].Proposed <= recs[0].Current {
		t.Errorf("false positives must propose a stricter threshold: %+v", recs[0])
	}

	// Computing a recommendation must not change live behavior.
	if _, ok := tuner.ThresholdFor("progress"); ok {
		t.Error("recommendations must not self-apply")
	}
}

func TestRecommendations_FalseNegativesLowerThreshold(t *testing.T) {
	tuner := NewTuner(0.70)
	for i := 0; i < 12; i++ {
		tuner.RecordFalseNegative("sprint")
	}

	recs := tuner.Recommendations()
	if len(recs) != 1 || recs[0].Proposed >= recs[0].Current {
		t.Errorf("false negatives must propose a looser threshold: %+v", recs)
	}
}

func TestPromote(t *testing.T) {
	tuner := NewTuner(0.70)
	if err := tuner.Promote("progress", 0.75); err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	got, ok := tuner.ThresholdFor("progress")
	if !ok || got != 0.75 {
		t.Errorf("expected 0.75, got %f (ok=%v)", got, ok)
	}

	if err := tuner.Promote("progress", 0.99); err == nil {
		t.Error("thresholds outside bounds must be rejected")
	}
}

func TestPromote_ClearsSignals(t *testing.T) {
	tuner := NewTuner(0.70)
	for i := 0; i < 12; i++ {
		tuner.RecordFalsePositive("progress")
	}
	if err := tuner.Promote("progress", 0.75); err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	if recs := tuner.Recommendations(); len(recs) != 0 {
		t.Errorf("promotion must clear signal counters, got %+v", recs)
	}
}

func TestShadowCollector_Candidates(t *testing.T) {
	c := NewShadowCollector()

	for i := 0; i < 3; i++ {
		c.Record("fp-orig", "fp-fixed", "weekly_progress", "s1")
	}
	c.Record("fp-orig", "fp-fixed", "weekly_progress", "s2")
	c.Record("fp-rare", "fp-fixed2", "velocity", "s1")

	candidates := c.Candidates(3, 2)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}
	got := candidates[0]
	if got.OriginalFP != "fp-orig" || got.Count != 4 || got.Sessions != 2 {
		t.Errorf("unexpected candidate %+v", got)
	}
	if got.Intent != "weekly_progress" {
		t.Errorf("intent lost: %+v", got)
	}
}

func TestShadowCollector_IntentAgreementRequired(t *testing.T) {
	c := NewShadowCollector()
	for i := 0; i < 5; i++ {
		c.Record("fp-split", "fp-fixed", "weekly_progress", "s1")
	}
	for i := 0; i < 5; i++ {
		c.Record("fp-split", "fp-fixed", "scrum_def", "s2")
	}

	if got := c.Candidates(3, 2); len(got) != 0 {
		t.Errorf("a 50/50 intent split must not promote a candidate, got %+v", got)
	}
}

func TestShadowCollector_DominantIntentWins(t *testing.T) {
	c := NewShadowCollector()
	for i := 0; i < 9; i++ {
		c.Record("fp-dom", "fp-fixed", "weekly_progress", "s1")
	}
	c.Record("fp-dom", "fp-fixed", "scrum_def", "s2")

	candidates := c.Candidates(3, 2)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate at 90%% agreement, got %d", len(candidates))
	}
	if candidates[0].Intent != "weekly_progress" {
		t.Errorf("expected the dominant intent, got %q", candidates[0].Intent)
	}
}

func TestShadowCollector_SessionDiversityRequired(t *testing.T) {
	c := NewShadowCollector()
	for i := 0; i < 10; i++ {
		c.Record("fp-spam", "fp-fixed", "x", "s1")
	}

	if got := c.Candidates(3, 2); len(got) != 0 {
		t.Errorf("a single spamming session must not promote a candidate, got %+v", got)
	}
}
