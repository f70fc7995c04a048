// Package guardian verifies drafts before they are rendered. FAST drafts
// get the light pass (format, forbidden content, policy re-check) with a
// small sample escalated to the full pass; QUALITY drafts always get the
// full pass: policy, then evidence sufficiency, then the structure contract.
// A policy failure is terminal and never retried.
package guardian

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/maru-labs/maru/internal/policy"
	"github.com/maru-labs/maru/internal/turn"
)

// Config controls verification strictness.
type Config struct {
	MaxRetries       int
	EscalationSample float64
	MinEvidenceItems int
	MinSources       int
	MinAvgConfidence float64
	MinDraftLength   int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       2,
		EscalationSample: 0.05,
		MinEvidenceItems: 2,
		MinSources:       2,
		MinAvgConfidence: 0.60,
		MinDraftLength:   20,
	}
}

// hedgePattern flags numbers presented as guesses rather than cited facts.
var hedgePattern = regexp.MustCompile(`(약|대략|추정|아마)\s*[0-9]`)

// citationPattern matches the [n] evidence citations the generator emits.
var citationPattern = regexp.MustCompile(`\[\d+\]`)

var numberPattern = regexp.MustCompile(`[0-9][0-9,.]*%?`)

// Guardian is the verification node.
type Guardian struct {
	config Config
	sample func() float64
}

func New(config Config) *Guardian {
	return &Guardian{config: config, sample: rand.Float64}
}

// Review verifies the turn's draft and returns the verdict. FAST drafts run
// the light pass; QUALITY drafts run the full pass.
func (g *Guardian) Review(state *turn.State) *turn.GuardianReport {
	if state.Track == turn.TrackQuality {
		return g.full(state)
	}

	report := g.light(state)
	if report.Verdict == turn.VerdictPass && g.sample() < g.config.EscalationSample {
		if escalated := g.full(state); escalated.Verdict != turn.VerdictPass {
			return escalated
		}
	}
	return report
}

// light is the FAST-track pass: policy re-check, forbidden content, and
// minimal format sanity. It never inspects evidence.
func (g *Guardian) light(state *turn.State) *turn.GuardianReport {
	if reasons := policyViolations(state.Draft); len(reasons) > 0 {
		return &turn.GuardianReport{
			Verdict:       turn.VerdictFail,
			Reasons:       reasons,
			FailingChecks: []turn.CheckKind{turn.CheckPolicy},
		}
	}

	var reasons []string
	if len([]rune(state.Draft)) < g.config.MinDraftLength {
		reasons = append(reasons, "draft shorter than minimum length")
	}
	if state.Spec != nil {
		reasons = append(reasons, forbiddenContent(state.Draft, state.Spec)...)
	}

	if len(reasons) > 0 {
		return g.retriable(state, reasons, turn.CheckContract, []string{"regenerate draft"})
	}
	return &turn.GuardianReport{Verdict: turn.VerdictPass}
}

// full is the QUALITY-track pass. Check families run in a fixed order and
// the first failing family decides the verdict.
func (g *Guardian) full(state *turn.State) *turn.GuardianReport {
	if reasons := policyViolations(state.Draft); len(reasons) > 0 {
		return &turn.GuardianReport{
			Verdict:       turn.VerdictFail,
			Reasons:       reasons,
			FailingChecks: []turn.CheckKind{turn.CheckPolicy},
		}
	}

	if reasons := g.evidenceViolations(state); len(reasons) > 0 {
		// Regeneration cannot conjure evidence; hand the turn to recovery.
		return &turn.GuardianReport{
			Verdict:         turn.VerdictFail,
			Reasons:         reasons,
			FailingChecks:   []turn.CheckKind{turn.CheckEvidence},
			RequiredActions: []string{"widen retrieval scope", "re-run retrieval"},
		}
	}

	if reasons := g.contractViolations(state); len(reasons) > 0 {
		return g.retriable(state, reasons, turn.CheckContract, []string{"regenerate draft against the answer spec"})
	}

	return &turn.GuardianReport{Verdict: turn.VerdictPass}
}

// retriable returns RETRY while the retry budget lasts, FAIL afterwards.
func (g *Guardian) retriable(state *turn.State, reasons []string, kind turn.CheckKind, actions []string) *turn.GuardianReport {
	verdict := turn.VerdictRetry
	if state.RetryCount >= g.config.MaxRetries {
		verdict = turn.VerdictFail
	}
	return &turn.GuardianReport{
		Verdict:         verdict,
		Reasons:         reasons,
		FailingChecks:   []turn.CheckKind{kind},
		RequiredActions: actions,
	}
}

// policyViolations re-checks the draft itself for PII and forbidden topics.
func policyViolations(draft string) []string {
	var reasons []string
	if policy.ContainsPII(draft) {
		reasons = append(reasons, "draft leaks personally identifiable information")
	}
	if topic := policy.MatchForbiddenTopic(draft); topic != "" {
		reasons = append(reasons, fmt.Sprintf("draft touches forbidden topic %q", topic))
	}
	return reasons
}

// evidenceViolations enforces evidence sufficiency and source legality.
// Sufficiency depends on the answer shape: a status answer stands on its db
// rows alone, while citing document answers need volume and confidence.
func (g *Guardian) evidenceViolations(state *turn.State) []string {
	var reasons []string
	citing := state.Spec != nil && state.Spec.CitationsRequired

	for _, e := range state.Evidence {
		if !policy.SourceAllowed(state.AnswerType, e.Source) {
			reasons = append(reasons, fmt.Sprintf(
				"evidence from %s is not allowed for %s", e.Source, state.AnswerType))
		}
	}

	if state.AnswerType.IsStatus() {
		if citing && len(state.EvidenceBySource()[turn.SourceDB]) == 0 {
			reasons = append(reasons, "STATUS answers require db evidence")
		}
		return reasons
	}

	if citing {
		if len(state.Evidence) < g.config.MinEvidenceItems {
			reasons = append(reasons, fmt.Sprintf(
				"evidence has %d items, need %d", len(state.Evidence), g.config.MinEvidenceItems))
		}
		if avg := avgConfidence(state.Evidence); len(state.Evidence) > 0 && avg < g.config.MinAvgConfidence {
			reasons = append(reasons, fmt.Sprintf(
				"average evidence confidence %.2f below %.2f", avg, g.config.MinAvgConfidence))
		}
		// Only MIXED draws from every source family; narrower shapes are
		// legitimately single-source.
		if state.AnswerType == turn.AnswerMixed {
			if bySource := state.EvidenceBySource(); len(bySource) < g.config.MinSources {
				reasons = append(reasons, fmt.Sprintf(
					"evidence spans %d sources, need %d", len(bySource), g.config.MinSources))
			}
		}
	}

	return reasons
}

// contractViolations enforces the architect spec against the draft text.
func (g *Guardian) contractViolations(state *turn.State) []string {
	spec := state.Spec
	if spec == nil {
		return []string{"no spec to verify against"}
	}

	var reasons []string

	for _, section := range spec.RequiredSections {
		if !strings.Contains(state.Draft, "## "+section) {
			reasons = append(reasons, fmt.Sprintf("missing required section %q", section))
		}
	}

	reasons = append(reasons, forbiddenContent(state.Draft, spec)...)

	if len(spec.DomainTerms) > 0 && !containsAny(state.Draft, spec.DomainTerms) {
		reasons = append(reasons, "draft uses none of the expected domain terms")
	}

	if spec.MaxLength > 0 && len([]rune(state.Draft)) > spec.MaxLength {
		reasons = append(reasons, fmt.Sprintf("draft exceeds %d characters", spec.MaxLength))
	}

	if spec.Format == turn.FormatJSON && !json.Valid([]byte(state.Draft)) {
		reasons = append(reasons, "draft is not valid JSON")
	}

	if hedgePattern.MatchString(state.Draft) {
		reasons = append(reasons, "draft hedges a number instead of citing evidence")
	}

	if spec.CitationsRequired {
		reasons = append(reasons, unanchoredNumbers(state.Draft)...)
		reasons = append(reasons, invalidCitations(state.Draft, len(state.Evidence))...)
	}

	return reasons
}

// invalidCitations flags citation indices that point outside the evidence
// list. A draft citing [7] over two evidence items fabricated the reference.
func invalidCitations(draft string, evidenceCount int) []string {
	var reasons []string
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllString(draft, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		idx, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || idx < 1 || idx > evidenceCount {
			reasons = append(reasons, fmt.Sprintf("citation %s has no matching evidence", m))
		}
	}
	return reasons
}

// unanchoredNumbers flags evidence-section lines that state a number
// without an evidence citation.
func unanchoredNumbers(draft string) []string {
	section := sectionBody(draft, "근거")
	if section == "" {
		return nil
	}

	var reasons []string
	for _, line := range strings.Split(section, "\n") {
		if numberPattern.MatchString(line) && !citationPattern.MatchString(line) {
			reasons = append(reasons, fmt.Sprintf("uncited number in evidence section: %q", strings.TrimSpace(line)))
		}
	}
	return reasons
}

// sectionBody returns the text between "## name" and the next header.
func sectionBody(draft, name string) string {
	marker := "## " + name
	start := strings.Index(draft, marker)
	if start < 0 {
		return ""
	}
	body := draft[start+len(marker):]
	if next := strings.Index(body, "\n## "); next >= 0 {
		body = body[:next]
	}
	return body
}

func forbiddenContent(draft string, spec *turn.ArchitectSpec) []string {
	var reasons []string
	for _, phrase := range spec.ForbiddenContent {
		if strings.Contains(draft, phrase) {
			reasons = append(reasons, fmt.Sprintf("draft contains forbidden phrase %q", phrase))
		}
	}
	return reasons
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func avgConfidence(items []turn.EvidenceItem) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range items {
		total += e.Confidence
	}
	return total / float64(len(items))
}
