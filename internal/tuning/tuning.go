// Package tuning adjusts the normalizer's fuzzy thresholds from observed
// correction quality. Nothing here self-applies: the tuner computes
// recommendations and an operator promotes them explicitly. The shadow
// collector likewise gathers typo-dictionary candidates without ever
// touching the live dictionary.
package tuning

import (
	"fmt"
	"sort"
	"sync"
)

const (
	thresholdFloor = 0.50
	thresholdCeil  = 0.95
	thresholdStep  = 0.05

	// minSignals is how many corrections a group needs before its
	// threshold is worth moving.
	minSignals = 10

	// minIntentAgreement is the share of observations that must agree on
	// one intent before a shadow entry becomes a candidate. A correction
	// that lands on different intents each time is noise, not a typo rule.
	minIntentAgreement = 0.8
)

// Tuner holds per-keyword-group fuzzy thresholds. It satisfies the
// normalizer's ThresholdProvider contract.
type Tuner struct {
	mu         sync.RWMutex
	defaultVal float64
	thresholds map[string]float64
	falsePos   map[string]int
	falseNeg   map[string]int
}

func NewTuner(defaultThreshold float64) *Tuner {
	return &Tuner{
		defaultVal: defaultThreshold,
		thresholds: make(map[string]float64),
		falsePos:   make(map[string]int),
		falseNeg:   make(map[string]int),
	}
}

// ThresholdFor returns the promoted threshold for the group, if any.
func (t *Tuner) ThresholdFor(group string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.thresholds[group]
	return v, ok
}

// RecordFalsePositive counts a correction the user rejected. Enough of
// these push the recommendation stricter.
func (t *Tuner) RecordFalsePositive(group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.falsePos[group]++
}

// RecordFalseNegative counts a typo the normalizer missed. Enough of these
// push the recommendation looser.
func (t *Tuner) RecordFalseNegative(group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.falseNeg[group]++
}

// Recommendation is a proposed threshold change awaiting promotion.
type Recommendation struct {
	Group    string  `json:"group"`
	Current  float64 `json:"current"`
	Proposed float64 `json:"proposed"`
	FalsePos int     `json:"false_positives"`
	FalseNeg int     `json:"false_negatives"`
}

// Recommendations computes proposed changes for groups with enough signal.
// Nothing is applied.
func (t *Tuner) Recommendations() []Recommendation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	groups := make(map[string]struct{})
	for g := range t.falsePos {
		groups[g] = struct{}{}
	}
	for g := range t.falseNeg {
		groups[g] = struct{}{}
	}

	var out []Recommendation
	for g := range groups {
		fp, fn := t.falsePos[g], t.falseNeg[g]
		if fp+fn < minSignals || fp == fn {
			continue
		}

		current := t.defaultVal
		if v, ok := t.thresholds[g]; ok {
			current = v
		}

		proposed := current
		if fp > fn {
			proposed = clamp(current + thresholdStep)
		} else {
			proposed = clamp(current - thresholdStep)
		}
		if proposed == current {
			continue
		}

		out = append(out, Recommendation{
			Group:    g,
			Current:  current,
			Proposed: proposed,
			FalsePos: fp,
			FalseNeg: fn,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// Promote applies a threshold explicitly and clears the group's signal
// counters.
func (t *Tuner) Promote(group string, threshold float64) error {
	if threshold < thresholdFloor || threshold > thresholdCeil {
		return fmt.Errorf("threshold %.2f outside [%.2f, %.2f]", threshold, thresholdFloor, thresholdCeil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.thresholds[group] = threshold
	delete(t.falsePos, group)
	delete(t.falseNeg, group)
	return nil
}

func clamp(v float64) float64 {
	if v < thresholdFloor {
		return thresholdFloor
	}
	if v > thresholdCeil {
		return thresholdCeil
	}
	return v
}

// ShadowEntry is one observed typo correction pair, keyed by the original
// query fingerprint. Intent is the dominant intent across observations.
type ShadowEntry struct {
	OriginalFP  string `json:"original_fp"`
	CorrectedFP string `json:"corrected_fp"`
	Intent      string `json:"intent"`
	Count       int    `json:"count"`
	Sessions    int    `json:"sessions"`
}

// ShadowCollector gathers typo-dictionary candidates from live L1/L3
// corrections. Entries are evidence for a human review, never rules.
type ShadowCollector struct {
	mu       sync.Mutex
	entries  map[string]*ShadowEntry
	sessions map[string]map[string]struct{}
	intents  map[string]map[string]int
}

func NewShadowCollector() *ShadowCollector {
	return &ShadowCollector{
		entries:  make(map[string]*ShadowEntry),
		sessions: make(map[string]map[string]struct{}),
		intents:  make(map[string]map[string]int),
	}
}

// Record stores one correction observation.
func (c *ShadowCollector) Record(originalFP, correctedFP, intent, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[originalFP]
	if !ok {
		e = &ShadowEntry{OriginalFP: originalFP, CorrectedFP: correctedFP}
		c.entries[originalFP] = e
		c.sessions[originalFP] = make(map[string]struct{})
		c.intents[originalFP] = make(map[string]int)
	}
	e.Count++
	c.sessions[originalFP][sessionID] = struct{}{}
	e.Sessions = len(c.sessions[originalFP])
	c.intents[originalFP][intent]++
}

// Candidates returns entries seen often enough, across enough distinct
// sessions, with enough intent agreement to be worth adding to the typo
// dictionary.
func (c *ShadowCollector) Candidates(minCount, minSessions int) []ShadowEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []ShadowEntry
	for fp, e := range c.entries {
		if e.Count < minCount || e.Sessions < minSessions {
			continue
		}
		intent, agreement := dominantIntent(c.intents[fp], e.Count)
		if agreement < minIntentAgreement {
			continue
		}
		candidate := *e
		candidate.Intent = intent
		out = append(out, candidate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// dominantIntent returns the most observed intent and its share of the total.
func dominantIntent(counts map[string]int, total int) (string, float64) {
	if total == 0 {
		return "", 0
	}
	best, bestCount := "", 0
	for intent, n := range counts {
		if n > bestCount || (n == bestCount && intent < best) {
			best, bestCount = intent, n
		}
	}
	return best, float64(bestCount) / float64(total)
}
