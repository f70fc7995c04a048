// Package analyst produces the validated plan that must exist before any
// retrieval runs. The plan comes from the quality LLM as JSON; extraction
// takes the first balanced JSON object from the raw completion, validation
// enforces the source whitelist, and a deterministic fallback plan stands in
// whenever the model output cannot be trusted.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/policy"
	"github.com/maru-labs/maru/internal/turn"
)

var (
	ErrNoJSON      = errors.New("no balanced JSON object in completion")
	ErrInvalidPlan = errors.New("plan failed validation")
)

// requestTypeSources maps request type → sources the plan must include.
var requestTypeSources = map[turn.RequestType][]turn.Source{
	turn.RequestStatus: {turn.SourceDB},
	turn.RequestHowto:  {turn.SourceDoc},
	turn.RequestDesign: {turn.SourceDoc},
	turn.RequestData:   {turn.SourceDB},
	turn.RequestMixed:  {turn.SourceDB, turn.SourceDoc},
	turn.RequestCasual: {},
}

// answerToRequest derives the request type from the classified answer type.
var answerToRequest = map[turn.AnswerType]turn.RequestType{
	turn.AnswerStatusMetric:    turn.RequestStatus,
	turn.AnswerStatusList:      turn.RequestStatus,
	turn.AnswerStatusDrilldown: turn.RequestStatus,
	turn.AnswerHowtoPolicy:     turn.RequestHowto,
	turn.AnswerMixed:           turn.RequestMixed,
	turn.AnswerCasual:          turn.RequestCasual,
}

// Analyst is the plan node.
type Analyst struct {
	model llm.Client
}

// New creates an analyst backed by the quality model. A nil model always
// produces the deterministic fallback plan.
func New(model llm.Client) *Analyst {
	return &Analyst{model: model}
}

// Plan produces a validated AnalystPlan for the turn. LLM failures and
// validation failures both degrade to the deterministic fallback.
func (a *Analyst) Plan(ctx context.Context, state *turn.State) *turn.AnalystPlan {
	fallback := a.fallbackPlan(state)

	if a.model == nil {
		return fallback
	}

	completion, err := a.model.Generate(ctx, buildPrompt(state))
	if err != nil {
		return fallback
	}

	raw, err := ExtractJSON(completion)
	if err != nil {
		return fallback
	}

	var plan turn.AnalystPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return fallback
	}

	if err := a.normalize(&plan, state); err != nil {
		return fallback
	}

	return &plan
}

// normalize validates and repairs the model's plan in place.
func (a *Analyst) normalize(plan *turn.AnalystPlan, state *turn.State) error {
	if plan.Intent == "" {
		return fmt.Errorf("%w: missing intent", ErrInvalidPlan)
	}
	if plan.RequestType == "" {
		plan.RequestType = answerToRequest[state.AnswerType]
	}
	if plan.Track == "" {
		plan.Track = state.Track
	}

	// Scope enforcement: project id is injected, never model-chosen.
	plan.Scope.ProjectID = state.ProjectID

	// Drop sources outside the whitelist.
	kept := plan.RequiredSources[:0]
	for _, s := range plan.RequiredSources {
		if turn.IsValidSource(s) {
			kept = append(kept, s)
		}
	}
	plan.RequiredSources = kept

	// Forbidden sources derive from the answer-type gate; the model's own
	// forbidden list is discarded.
	plan.ForbiddenSources = policy.ForbiddenSources(state.AnswerType)

	// Mandated sources for the request type are always present.
	for _, required := range requestTypeSources[plan.RequestType] {
		if !plan.Requires(required) {
			plan.RequiredSources = append(plan.RequiredSources, required)
		}
	}

	// Conflict resolution: a forbidden source is removed, not honored.
	filtered := plan.RequiredSources[:0]
	for _, s := range plan.RequiredSources {
		if !plan.Forbids(s) {
			filtered = append(filtered, s)
		}
	}
	plan.RequiredSources = filtered

	// Evidence-citing request types always run on the QUALITY track.
	if plan.Track == turn.TrackFast && demandsCitations(plan.RequestType) {
		plan.Track = turn.TrackQuality
	}

	return nil
}

// demandsCitations reports whether the request type requires cited evidence.
func demandsCitations(rt turn.RequestType) bool {
	return rt == turn.RequestStatus || rt == turn.RequestDesign
}

// fallbackPlan is the deterministic substitute for an unusable model plan.
func (a *Analyst) fallbackPlan(state *turn.State) *turn.AnalystPlan {
	requestType := answerToRequest[state.AnswerType]
	if requestType == "" {
		requestType = turn.RequestCasual
	}

	plan := &turn.AnalystPlan{
		Intent:           string(state.AnswerType),
		RequestType:      requestType,
		Track:            state.Track,
		Scope:            turn.Scope{ProjectID: state.ProjectID},
		RequiredSources:  append([]turn.Source(nil), requestTypeSources[requestType]...),
		ForbiddenSources: policy.ForbiddenSources(state.AnswerType),
	}

	if plan.Track == "" {
		plan.Track = turn.TrackFast
	}
	if plan.Track == turn.TrackFast && demandsCitations(requestType) {
		plan.Track = turn.TrackQuality
	}

	if state.AnswerType == turn.AnswerMixed && state.Confidence < 0.55 {
		plan.ClarificationQuestions = []string{
			"현황이 궁금하신가요, 아니면 방법/정책이 궁금하신가요?",
		}
	}

	return plan
}

// ShouldSkipRetrieval reports whether the plan answers without evidence:
// casual turns and clarification turns never retrieve.
func ShouldSkipRetrieval(plan *turn.AnalystPlan) bool {
	if plan.RequestType == turn.RequestCasual {
		return true
	}
	return len(plan.ClarificationQuestions) > 0
}

func buildPrompt(state *turn.State) string {
	var b strings.Builder
	b.WriteString("당신은 프로젝트 관리 비서의 분석가입니다. 질문을 분석해 JSON 계획만 출력하세요.\n")
	b.WriteString(`형식: {"intent":"...","request_type":"STATUS|HOWTO|DESIGN|DATA|MIXED|CASUAL",`)
	b.WriteString(`"track":"FAST|QUALITY","scope":{"project_id":"","entity":""},`)
	b.WriteString(`"required_sources":["db","graph","doc","policy"],"clarification_questions":[]}`)
	b.WriteString("\n\n질문: ")
	b.WriteString(state.NormalizedQuery)
	b.WriteString("\n분류: ")
	b.WriteString(string(state.AnswerType))
	return b.String()
}

// ExtractJSON returns the first balanced JSON object in the text, tolerant
// of surrounding prose and markdown fences.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}
