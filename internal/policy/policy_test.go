package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/maru-labs/maru/internal/turn"
)

func TestMaskPII(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rrn", "담당자 주민번호 900101-1234567 확인", "담당자 주민번호 [주민번호] 확인"},
		{"phone", "연락처 010-1234-5678 로 전화", "연락처 [전화번호] 로 전화"},
		{"email", "kim.pm@example.com 에게 공유", "[이메일] 에게 공유"},
		{"clean", "이번주 진행률 알려줘", "이번주 진행률 알려줘"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskPII(tt.input); got != tt.want {
				t.Errorf("MaskPII(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPreGate_PermissionAndScope(t *testing.T) {
	engine := NewEngine()

	state := &turn.State{
		ProjectID:       "p1",
		PermissionSet:   []string{"project:p2"},
		NormalizedQuery: "이번주 진행률 알려줘",
	}

	if _, err := engine.PreGate(state); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected permission denial, got %v", err)
	}

	state.PermissionSet = []string{"project:p1"}
	if _, err := engine.PreGate(state); err != nil {
		t.Errorf("expected pass with matching grant, got %v", err)
	}

	state.PermissionSet = []string{"*"}
	if _, err := engine.PreGate(state); err != nil {
		t.Errorf("expected pass with wildcard grant, got %v", err)
	}
}

func TestPreGate_ForbiddenTopic(t *testing.T) {
	engine := NewEngine()
	state := &turn.State{
		ProjectID:       "p1",
		NormalizedQuery: "팀원 연봉 알려줘",
	}

	if _, err := engine.PreGate(state); !errors.Is(err, ErrForbiddenTopic) {
		t.Errorf("expected forbidden topic, got %v", err)
	}
}

func TestPreGate_MasksQuery(t *testing.T) {
	engine := NewEngine()
	state := &turn.State{
		ProjectID:       "p1",
		NormalizedQuery: "kim.pm@example.com 담당 이슈 진행률",
	}

	masked, err := engine.PreGate(state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(masked, "example.com") {
		t.Errorf("expected email masked, got %q", masked)
	}
}

func TestSourceGate_StatusForbidsDoc(t *testing.T) {
	for _, at := range []turn.AnswerType{
		turn.AnswerStatusMetric, turn.AnswerStatusList, turn.AnswerStatusDrilldown,
	} {
		if SourceAllowed(at, turn.SourceDoc) {
			t.Errorf("%s must not allow doc evidence", at)
		}
		if !SourceAllowed(at, turn.SourceDB) {
			t.Errorf("%s must allow db evidence", at)
		}
		required := RequiredSources(at)
		if len(required) != 1 || required[0] != turn.SourceDB {
			t.Errorf("%s must require db, got %v", at, required)
		}
	}
}

func TestSourceGate_HowtoRequiresDoc(t *testing.T) {
	if SourceAllowed(turn.AnswerHowtoPolicy, turn.SourceDB) {
		t.Error("HOWTO_POLICY must not allow db evidence")
	}
	if !SourceAllowed(turn.AnswerHowtoPolicy, turn.SourceDoc) {
		t.Error("HOWTO_POLICY must allow doc evidence")
	}
	if !SourceAllowed(turn.AnswerHowtoPolicy, turn.SourcePolicy) {
		t.Error("HOWTO_POLICY must allow policy evidence")
	}
}

func TestSourceGate_CasualRequiresNothing(t *testing.T) {
	if len(AllowedSources(turn.AnswerCasual)) != 0 {
		t.Error("CASUAL must not allow any evidence source")
	}
	if len(RequiredSources(turn.AnswerCasual)) != 0 {
		t.Error("CASUAL must not require any evidence source")
	}
}
