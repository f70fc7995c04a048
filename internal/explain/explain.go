// Package explain builds the transparency record attached to every
// non-casual response, and enforces the rule that a status answer without
// database evidence never ships as data.
package explain

import (
	"errors"

	"github.com/maru-labs/maru/internal/turn"
)

// ErrUnsourcedStatus means a STATUS answer holds no db evidence. The caller
// must degrade the turn to EMPTY with a recovery plan instead of rendering.
var ErrUnsourcedStatus = errors.New("status answer has no db evidence")

// Build assembles the explanation for a finished turn. rulesFired carries
// the classifier rules that produced the answer type.
func Build(state *turn.State, rulesFired []string) *turn.Explanation {
	counts := make(map[turn.Source]int)
	for _, e := range state.Evidence {
		counts[e.Source]++
	}

	// Deterministic source order for stable rendering.
	var used []turn.Source
	for _, s := range turn.ValidSources {
		if counts[s] > 0 {
			used = append(used, s)
		}
	}

	intent := string(state.AnswerType)
	if state.Plan != nil && state.Plan.Intent != "" {
		intent = state.Plan.Intent
	}

	return &turn.Explanation{
		Intent:          intent,
		Confidence:      state.Confidence,
		Track:           state.Track,
		SourcesUsed:     used,
		EvidenceCounts:  counts,
		RulesFired:      rulesFired,
		FreshnessSecond: oldestEvidence(state.Evidence),
	}
}

// CheckShippable rejects answer shapes that must not reach the user as
// data. Today that is the status family without a single db-backed item.
func CheckShippable(state *turn.State) error {
	if !state.AnswerType.IsStatus() {
		return nil
	}
	for _, e := range state.Evidence {
		if e.Source == turn.SourceDB {
			return nil
		}
	}
	return ErrUnsourcedStatus
}

// oldestEvidence returns the age of the stalest item in seconds.
func oldestEvidence(items []turn.EvidenceItem) int64 {
	var oldest int64
	for _, e := range items {
		if e.FreshnessSeconds > oldest {
			oldest = e.FreshnessSeconds
		}
	}
	return oldest
}
