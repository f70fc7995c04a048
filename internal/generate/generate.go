// Package generate renders the draft answer for a turn. The FAST track is a
// single prompt to the fast model; the QUALITY track feeds the architect
// spec, an evidence digest, and the context snapshot to the quality model.
// A turn that requires citations but holds no evidence never reaches a
// model: it gets a deterministic safe-exit draft instead.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/snapshot"
	"github.com/maru-labs/maru/internal/turn"
)

var ErrNoSpec = errors.New("generation requires an architect spec")

// Generator is the draft node.
type Generator struct {
	router *llm.Router
}

func New(router *llm.Router) *Generator {
	return &Generator{router: router}
}

// Draft produces the draft for the turn's track. The snapshot may be nil.
func (g *Generator) Draft(ctx context.Context, state *turn.State, snap *snapshot.Snapshot) (string, error) {
	if state.Spec == nil {
		return "", ErrNoSpec
	}

	if state.Spec.CitationsRequired && len(state.Evidence) == 0 {
		return SafeExitDraft(state), nil
	}

	switch state.Track {
	case turn.TrackQuality:
		return g.router.Quality.Generate(ctx, qualityPrompt(state, snap))
	default:
		return g.router.Fast.Generate(ctx, fastPrompt(state, snap))
	}
}

// SafeExitDraft is the deterministic draft used when a citation-required
// turn holds no evidence. It admits the gap and points at next steps so the
// renderer never ships an unsourced number.
func SafeExitDraft(state *turn.State) string {
	var b strings.Builder
	b.WriteString("## 요약\n")
	b.WriteString("요청하신 내용을 뒷받침할 데이터를 찾지 못했습니다.\n\n")
	b.WriteString("## " + evidenceSectionName(state) + "\n")
	b.WriteString("사용 가능한 근거가 없습니다.\n\n")
	b.WriteString("## 다음 단계\n")
	b.WriteString("- 조회 기간을 넓혀서 다시 시도해 보세요.\n")
	b.WriteString("- 프로젝트 전체 범위로 다시 질문해 보세요.\n")
	return b.String()
}

func evidenceSectionName(state *turn.State) string {
	for _, s := range state.Spec.RequiredSections {
		if s == "근거" {
			return s
		}
	}
	return "근거"
}

func fastPrompt(state *turn.State, snap *snapshot.Snapshot) string {
	var b strings.Builder
	b.WriteString("당신은 프로젝트 관리 비서입니다. 간결하게 한국어로 답하세요.\n")
	if snap != nil {
		b.WriteString("\n현재 컨텍스트:\n")
		b.WriteString(snap.Render())
		b.WriteString("\n")
	}
	b.WriteString(retryGuidance(state))
	b.WriteString("\n질문: ")
	b.WriteString(state.NormalizedQuery)
	return b.String()
}

func qualityPrompt(state *turn.State, snap *snapshot.Snapshot) string {
	spec := state.Spec

	var b strings.Builder
	b.WriteString("당신은 프로젝트 관리 비서입니다. 아래 구조 계약과 근거만으로 한국어 답변을 작성하세요.\n")
	b.WriteString("근거에 없는 수치는 절대 만들지 마세요. 수치 옆에는 [번호] 형태로 근거를 인용하세요.\n\n")

	if len(spec.RequiredSections) > 0 {
		b.WriteString("필수 섹션(각각 '## 섹션명' 헤더로): ")
		b.WriteString(strings.Join(spec.RequiredSections, ", "))
		b.WriteString("\n")
	}
	if len(spec.ForbiddenContent) > 0 {
		b.WriteString("금지 표현: ")
		b.WriteString(strings.Join(spec.ForbiddenContent, ", "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "최대 길이: %d자\n", spec.MaxLength)

	if snap != nil {
		b.WriteString("\n현재 컨텍스트:\n")
		b.WriteString(snap.Render())
		b.WriteString("\n")
	}

	b.WriteString("\n근거:\n")
	b.WriteString(EvidenceDigest(state.Evidence))

	b.WriteString(retryGuidance(state))
	b.WriteString("\n질문: ")
	b.WriteString(state.NormalizedQuery)
	return b.String()
}

// retryGuidance folds the previous review's findings into the prompt so a
// regeneration does not reproduce the rejected draft.
func retryGuidance(state *turn.State) string {
	if state.RetryCount == 0 || state.Report == nil {
		return ""
	}
	if len(state.Report.Reasons) == 0 && len(state.Report.RequiredActions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n이전 답변은 검수에서 반려되었습니다. 아래 문제를 반드시 고쳐서 다시 작성하세요:\n")
	for _, reason := range state.Report.Reasons {
		b.WriteString("- " + reason + "\n")
	}
	for _, action := range state.Report.RequiredActions {
		b.WriteString("- " + action + "\n")
	}
	return b.String()
}

// EvidenceDigest renders evidence as numbered, citable lines.
func EvidenceDigest(items []turn.EvidenceItem) string {
	if len(items) == 0 {
		return "(없음)\n"
	}
	var b strings.Builder
	for i, e := range items {
		fmt.Fprintf(&b, "[%d] (%s) %s: %s\n", i+1, e.Source, e.Ref, e.Payload)
	}
	return b.String()
}
