package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/snapshot"
	"github.com/maru-labs/maru/internal/turn"
)

func router(fast, quality *llm.Mock) *llm.Router {
	return &llm.Router{Fast: fast, Quality: quality}
}

func TestDraft_FastTrackUsesFastModel(t *testing.T) {
	fast := llm.NewMock("네, 안녕하세요!")
	quality := llm.NewMock("quality should not run")
	g := New(router(fast, quality))

	state := &turn.State{
		Track:           turn.TrackFast,
		NormalizedQuery: "안녕",
		Spec:            &turn.ArchitectSpec{Format: turn.FormatMarkdown, MaxLength: 400},
	}

	draft, err := g.Draft(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if draft != "네, 안녕하세요!" {
		t.Errorf("unexpected draft %q", draft)
	}
	if quality.Calls() != 0 {
		t.Error("fast track must not call the quality model")
	}
}

func TestDraft_QualityPromptCarriesSpecAndEvidence(t *testing.T) {
	quality := llm.NewMock("## 요약\n진행률은 42.5%입니다 [1]\n")
	g := New(router(llm.NewMock("unused"), quality))

	state := &turn.State{
		Track:           turn.TrackQuality,
		NormalizedQuery: "이번주 진행률 알려줘",
		Spec: &turn.ArchitectSpec{
			Format:            turn.FormatMarkdown,
			RequiredSections:  []string{"요약", "근거"},
			ForbiddenContent:  []string{"아마도"},
			CitationsRequired: true,
			MaxLength:         2000,
		},
		Evidence: []turn.EvidenceItem{
			{Source: turn.SourceDB, Ref: "db:p1:progress_rate:2025-06-02", Payload: "progress_rate=42.5 (n=17)", Confidence: 1.0},
		},
	}

	if _, err := g.Draft(context.Background(), state, nil); err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	prompt := quality.LastPrompt()
	for _, want := range []string{"요약", "근거", "아마도", "db:p1:progress_rate:2025-06-02", "[1]"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDraft_SafeExitWhenCitationsRequiredAndNoEvidence(t *testing.T) {
	quality := llm.NewMock("must not be called")
	g := New(router(llm.NewMock("unused"), quality))

	state := &turn.State{
		Track:           turn.TrackQuality,
		NormalizedQuery: "이번주 진행률 알려줘",
		Spec: &turn.ArchitectSpec{
			Format:            turn.FormatMarkdown,
			RequiredSections:  []string{"요약", "근거", "다음 단계"},
			CitationsRequired: true,
			MaxLength:         2000,
		},
	}

	draft, err := g.Draft(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if quality.Calls() != 0 {
		t.Error("safe exit must not reach a model")
	}
	if !strings.Contains(draft, "## 근거") || !strings.Contains(draft, "## 다음 단계") {
		t.Errorf("safe-exit draft missing required sections: %q", draft)
	}
}

func TestDraft_RetryPromptCarriesReviewFindings(t *testing.T) {
	quality := llm.NewMock("## 요약\n진행률은 42.5%입니다 [1]\n")
	g := New(router(llm.NewMock("unused"), quality))

	state := &turn.State{
		Track:           turn.TrackQuality,
		NormalizedQuery: "이번주 진행률 알려줘",
		Spec: &turn.ArchitectSpec{
			Format:            turn.FormatMarkdown,
			RequiredSections:  []string{"요약", "근거"},
			CitationsRequired: true,
			MaxLength:         2000,
		},
		Evidence: []turn.EvidenceItem{
			{Source: turn.SourceDB, Ref: "db:p1:progress_rate:2025-06-02", Payload: "progress_rate=42.5 (n=17)", Confidence: 1.0},
		},
	}

	if _, err := g.Draft(context.Background(), state, nil); err != nil {
		t.Fatalf("first draft failed: %v", err)
	}
	first := quality.LastPrompt()

	state.RetryCount = 1
	state.Report = &turn.GuardianReport{
		Verdict:         turn.VerdictRetry,
		Reasons:         []string{`missing required section "근거"`},
		RequiredActions: []string{"regenerate draft against the answer spec"},
	}

	if _, err := g.Draft(context.Background(), state, nil); err != nil {
		t.Fatalf("retry draft failed: %v", err)
	}
	second := quality.LastPrompt()

	if first == second {
		t.Fatal("a retry must not reuse the rejected attempt's prompt verbatim")
	}
	if !strings.Contains(second, `missing required section "근거"`) {
		t.Errorf("retry prompt missing the review reason: %q", second)
	}
	if !strings.Contains(second, "regenerate draft against the answer spec") {
		t.Errorf("retry prompt missing the required action: %q", second)
	}
}

func TestDraft_SnapshotInjected(t *testing.T) {
	fast := llm.NewMock("ok")
	g := New(router(fast, llm.NewMock("unused")))

	state := &turn.State{
		Track:           turn.TrackFast,
		NormalizedQuery: "뭐 하고 있었지?",
		Spec:            &turn.ArchitectSpec{Format: turn.FormatMarkdown, MaxLength: 400},
	}
	snap := &snapshot.Snapshot{Now: []string{"PMS-1 리뷰 중"}}

	if _, err := g.Draft(context.Background(), state, snap); err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if !strings.Contains(fast.LastPrompt(), "PMS-1 리뷰 중") {
		t.Error("snapshot content missing from prompt")
	}
}

func TestDraft_MissingSpecRejected(t *testing.T) {
	g := New(router(llm.NewMock("x"), llm.NewMock("y")))
	state := &turn.State{Track: turn.TrackFast, NormalizedQuery: "안녕"}

	if _, err := g.Draft(context.Background(), state, nil); err == nil {
		t.Fatal("expected error without a spec")
	}
}

func TestEvidenceDigest(t *testing.T) {
	digest := EvidenceDigest([]turn.EvidenceItem{
		{Source: turn.SourceDB, Ref: "ref-1", Payload: "a"},
		{Source: turn.SourceDoc, Ref: "ref-2", Payload: "b"},
	})

	if !strings.Contains(digest, "[1] (db) ref-1: a") {
		t.Errorf("unexpected digest: %q", digest)
	}
	if !strings.Contains(digest, "[2] (doc) ref-2: b") {
		t.Errorf("unexpected digest: %q", digest)
	}
}
