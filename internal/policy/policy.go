// Package policy implements the L0 policy engine: PII masking, permission
// and scope enforcement, and the source-policy gate that maps each answer
// type to its allowed evidence sources. The gate is a table so it can be
// audited in one place.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/maru-labs/maru/internal/turn"
)

var (
	ErrForbiddenTopic   = errors.New("query touches a forbidden topic")
	ErrMissingProject   = errors.New("project scope is required")
	ErrPermissionDenied = errors.New("permission denied for project")
)

// PII patterns masked before any persistence or LLM call.
var (
	rrnPattern   = regexp.MustCompile(`\b\d{6}-\d{7}\b`)
	phonePattern = regexp.MustCompile(`\b01[016789]-?\d{3,4}-?\d{4}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// forbiddenTopics are rejected outright at the pre-gate.
var forbiddenTopics = []string{"연봉", "급여", "인사평가", "해고"}

// MaskPII replaces resident registration numbers, phone numbers, and email
// addresses with fixed placeholders.
func MaskPII(text string) string {
	text = rrnPattern.ReplaceAllString(text, "[주민번호]")
	text = phonePattern.ReplaceAllString(text, "[전화번호]")
	text = emailPattern.ReplaceAllString(text, "[이메일]")
	return text
}

// ContainsPII reports whether the text carries any maskable PII.
func ContainsPII(text string) bool {
	return rrnPattern.MatchString(text) ||
		phonePattern.MatchString(text) ||
		emailPattern.MatchString(text)
}

// Engine enforces the pre-gate rules for every turn.
type Engine struct{}

// NewEngine creates the policy engine.
func NewEngine() *Engine {
	return &Engine{}
}

// PreGate checks the incoming turn before any planning or retrieval.
// The returned query has PII masked. A non-nil error means FORBIDDEN.
func (e *Engine) PreGate(state *turn.State) (string, error) {
	if state.ProjectID == "" {
		return "", ErrMissingProject
	}

	if !hasProjectPermission(state.PermissionSet, state.ProjectID) {
		return "", fmt.Errorf("%w: %s", ErrPermissionDenied, state.ProjectID)
	}

	query := state.NormalizedQuery
	if topic := MatchForbiddenTopic(query); topic != "" {
		return "", fmt.Errorf("%w: %s", ErrForbiddenTopic, topic)
	}

	return MaskPII(query), nil
}

// MatchForbiddenTopic returns the first forbidden topic the text mentions,
// or "" if it is clean.
func MatchForbiddenTopic(text string) string {
	for _, topic := range forbiddenTopics {
		if strings.Contains(text, topic) {
			return topic
		}
	}
	return ""
}

// hasProjectPermission accepts the wildcard permission, a project:<id>
// grant, or an empty permission set (trusted internal callers).
func hasProjectPermission(permissions []string, projectID string) bool {
	if len(permissions) == 0 {
		return true
	}
	for _, p := range permissions {
		if p == "*" || p == "project:"+projectID {
			return true
		}
	}
	return false
}

// sourceRule is one row of the source-policy gate.
type sourceRule struct {
	allowed   []turn.Source
	forbidden []turn.Source
	required  []turn.Source
}

// sourceGate maps answer type → source rules. STATUS answers originate
// numbers from the database only; documents never substitute.
var sourceGate = map[turn.AnswerType]sourceRule{
	turn.AnswerStatusMetric: {
		allowed:   []turn.Source{turn.SourceDB, turn.SourceGraph},
		forbidden: []turn.Source{turn.SourceDoc},
		required:  []turn.Source{turn.SourceDB},
	},
	turn.AnswerStatusList: {
		allowed:   []turn.Source{turn.SourceDB, turn.SourceGraph},
		forbidden: []turn.Source{turn.SourceDoc},
		required:  []turn.Source{turn.SourceDB},
	},
	turn.AnswerStatusDrilldown: {
		allowed:   []turn.Source{turn.SourceDB, turn.SourceGraph},
		forbidden: []turn.Source{turn.SourceDoc},
		required:  []turn.Source{turn.SourceDB},
	},
	turn.AnswerHowtoPolicy: {
		allowed:  []turn.Source{turn.SourceDoc, turn.SourcePolicy},
		required: []turn.Source{turn.SourceDoc},
	},
	turn.AnswerMixed: {
		allowed: []turn.Source{turn.SourceDB, turn.SourceGraph, turn.SourceDoc, turn.SourcePolicy},
	},
	turn.AnswerCasual: {},
}

// AllowedSources returns the sources an answer type may draw evidence from.
func AllowedSources(answerType turn.AnswerType) []turn.Source {
	return sourceGate[answerType].allowed
}

// ForbiddenSources returns the sources an answer type must never cite.
func ForbiddenSources(answerType turn.AnswerType) []turn.Source {
	return sourceGate[answerType].forbidden
}

// RequiredSources returns the sources an answer type must include.
func RequiredSources(answerType turn.AnswerType) []turn.Source {
	return sourceGate[answerType].required
}

// SourceAllowed reports whether evidence from s may support answerType.
func SourceAllowed(answerType turn.AnswerType, s turn.Source) bool {
	rule, ok := sourceGate[answerType]
	if !ok {
		return false
	}
	for _, f := range rule.forbidden {
		if f == s {
			return false
		}
	}
	for _, a := range rule.allowed {
		if a == s {
			return true
		}
	}
	return false
}
