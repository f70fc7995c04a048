// Package recovery proposes self-healing steps when a turn cannot answer.
// The planner only proposes; it never executes. Proposals follow a fixed
// priority order and every (intent, action kind) pair is capped per session
// so a failing query cannot loop forever.
package recovery

import (
	"sync"

	"github.com/maru-labs/maru/internal/turn"
)

// Action kinds in fixed priority order.
const (
	ActionWidenTimeRange       = "widen_time_range"
	ActionBroadenScope         = "broaden_scope"
	ActionSubstituteSource     = "substitute_source"
	ActionAskClarification     = "ask_clarification"
	ActionPresentKnownUnknowns = "present_known_unknowns"
)

var actionDetails = map[string]string{
	ActionWidenTimeRange:       "조회 기간을 지난 2주로 넓혀서 다시 조회해 보세요.",
	ActionBroadenScope:         "프로젝트 전체 범위로 다시 조회해 보세요.",
	ActionSubstituteSource:     "문서 근거로 일반적인 가이드를 안내해 드릴 수 있어요.",
	ActionAskClarification:     "어떤 정보가 필요하신지 조금 더 구체적으로 알려주세요.",
	ActionPresentKnownUnknowns: "현재 확인 가능한 범위와 확인이 불가능한 항목을 정리해 드릴게요.",
}

// candidatesFor maps failure codes to applicable action kinds, already in
// priority order.
var candidatesFor = map[turn.ErrorCode][]string{
	turn.ErrCodeEmpty: {
		ActionWidenTimeRange,
		ActionBroadenScope,
		ActionAskClarification,
		ActionPresentKnownUnknowns,
	},
	// Documents never substitute for missing numbers. A db failure widens
	// the window for a later retry or asks the user to reshape the question.
	turn.ErrCodeDBFailure: {
		ActionWidenTimeRange,
		ActionAskClarification,
	},
	turn.ErrCodeTimeout: {
		ActionBroadenScope,
		ActionPresentKnownUnknowns,
	},
}

type attemptKey struct {
	intent string
	kind   string
}

// AttemptTracker counts recovery proposals per session. Each (intent,
// action kind) pair is capped at the ceiling; at the cap the action is no
// longer proposed.
type AttemptTracker struct {
	mu      sync.Mutex
	ceiling int
	counts  map[string]map[attemptKey]int
}

// NewAttemptTracker creates a tracker with the given per-pair ceiling.
func NewAttemptTracker(ceiling int) *AttemptTracker {
	if ceiling <= 0 {
		ceiling = 3
	}
	return &AttemptTracker{
		ceiling: ceiling,
		counts:  make(map[string]map[attemptKey]int),
	}
}

// Allowed reports whether the pair is still under its ceiling.
func (t *AttemptTracker) Allowed(sessionID, intent, kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[sessionID][attemptKey{intent, kind}] < t.ceiling
}

// Record counts one proposal for the pair.
func (t *AttemptTracker) Record(sessionID, intent, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.counts[sessionID]
	if !ok {
		session = make(map[attemptKey]int)
		t.counts[sessionID] = session
	}
	session[attemptKey{intent, kind}]++
}

// Reset drops all counts for a session.
func (t *AttemptTracker) Reset(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, sessionID)
}

// Planner is the recovery node.
type Planner struct {
	tracker *AttemptTracker
}

func NewPlanner(tracker *AttemptTracker) *Planner {
	return &Planner{tracker: tracker}
}

// Plan proposes recovery actions for the failure code. Actions whose
// (intent, kind) pair hit the session ceiling are dropped; an empty plan
// means the turn is UNSUPPORTED.
func (p *Planner) Plan(state *turn.State, code turn.ErrorCode) *turn.RecoveryPlan {
	intent := intentOf(state)

	var actions []turn.RecoveryAction
	for i, kind := range p.candidates(state, code) {
		if !p.tracker.Allowed(state.SessionID, intent, kind) {
			continue
		}
		p.tracker.Record(state.SessionID, intent, kind)
		actions = append(actions, turn.RecoveryAction{
			Kind:     kind,
			Detail:   actionDetails[kind],
			Priority: i + 1,
		})
	}

	return &turn.RecoveryPlan{
		Actions: actions,
		Reason:  reasonFor(code),
	}
}

// Exhausted reports whether a plan offers no actions.
func Exhausted(plan *turn.RecoveryPlan) bool {
	return plan == nil || len(plan.Actions) == 0
}

// candidates filters the code's action list by turn shape: widening a time
// range only makes sense for status turns, and substitution only for turns
// that may cite documents.
func (p *Planner) candidates(state *turn.State, code turn.ErrorCode) []string {
	base := candidatesFor[code]
	if base == nil {
		base = []string{ActionPresentKnownUnknowns}
	}

	out := make([]string, 0, len(base))
	for _, kind := range base {
		switch kind {
		case ActionWidenTimeRange:
			if !state.AnswerType.IsStatus() {
				continue
			}
		case ActionSubstituteSource:
			if state.AnswerType.IsStatus() {
				continue
			}
		}
		out = append(out, kind)
	}
	return out
}

func intentOf(state *turn.State) string {
	if state.Plan != nil && state.Plan.Intent != "" {
		return state.Plan.Intent
	}
	return string(state.AnswerType)
}

func reasonFor(code turn.ErrorCode) string {
	switch code {
	case turn.ErrCodeEmpty:
		return "조건에 맞는 데이터를 찾지 못했습니다."
	case turn.ErrCodeDBFailure:
		return "데이터 저장소 연결에 실패했습니다. 잠시 후 다시 시도해 주세요."
	case turn.ErrCodeTimeout:
		return "응답 시간이 초과되었습니다."
	default:
		return "요청을 처리하지 못했습니다."
	}
}
