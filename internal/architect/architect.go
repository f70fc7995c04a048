// Package architect produces the response-structure contract that must be
// validated before generation. A template catalogue keyed by request type
// and track provides the canonical spec; the quality model may refine it,
// but anything that fails validation falls back to the catalogue entry.
package architect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maru-labs/maru/internal/analyst"
	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/turn"
)

var ErrInvalidSpec = errors.New("spec failed validation")

// EvidenceSection is the section name STATUS specs must include; the
// Guardian checks that numbers in it anchor to evidence refs.
const EvidenceSection = "근거"

type templateKey struct {
	requestType turn.RequestType
	track       turn.Track
}

// catalogue holds the canonical spec per request type and track.
var catalogue = map[templateKey]turn.ArchitectSpec{
	{turn.RequestStatus, turn.TrackQuality}: {
		Format:            turn.FormatMarkdown,
		RequiredSections:  []string{"요약", EvidenceSection, "다음 단계"},
		ForbiddenContent:  []string{"추정치입니다", "아마도"},
		DomainTerms:       []string{"진행률", "스프린트"},
		CitationsRequired: true,
		MaxLength:         2000,
	},
	{turn.RequestHowto, turn.TrackQuality}: {
		Format:            turn.FormatMarkdown,
		RequiredSections:  []string{"정의", "적용 방법"},
		DomainTerms:       []string{"스크럼", "스프린트"},
		CitationsRequired: true,
		MaxLength:         2500,
	},
	{turn.RequestHowto, turn.TrackFast}: {
		Format:           turn.FormatMarkdown,
		RequiredSections: []string{"정의"},
		MaxLength:        1200,
	},
	{turn.RequestDesign, turn.TrackQuality}: {
		Format:            turn.FormatMarkdown,
		RequiredSections:  []string{"요약", "설계 근거", EvidenceSection},
		CitationsRequired: true,
		MaxLength:         3000,
	},
	{turn.RequestData, turn.TrackQuality}: {
		Format:            turn.FormatHybrid,
		RequiredSections:  []string{"요약", EvidenceSection},
		CitationsRequired: true,
		MaxLength:         2000,
	},
	{turn.RequestMixed, turn.TrackQuality}: {
		Format:            turn.FormatMarkdown,
		RequiredSections:  []string{"요약", EvidenceSection},
		CitationsRequired: true,
		MaxLength:         2500,
	},
	{turn.RequestCasual, turn.TrackFast}: {
		Format:    turn.FormatMarkdown,
		MaxLength: 400,
	},
}

// Architect is the spec node.
type Architect struct {
	model llm.Client
}

// New creates an architect. A nil model always uses the catalogue directly.
func New(model llm.Client) *Architect {
	return &Architect{model: model}
}

// Spec produces a validated ArchitectSpec for the turn.
func (a *Architect) Spec(ctx context.Context, state *turn.State) *turn.ArchitectSpec {
	canonical := a.canonical(state)

	if a.model == nil || state.Track == turn.TrackFast {
		return canonical
	}

	completion, err := a.model.Generate(ctx, buildPrompt(state, canonical))
	if err != nil {
		return canonical
	}

	raw, err := analyst.ExtractJSON(completion)
	if err != nil {
		return canonical
	}

	var spec turn.ArchitectSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return canonical
	}

	if err := Validate(&spec, state.AnswerType); err != nil {
		return canonical
	}

	return &spec
}

// canonical picks and pins the catalogue template for the turn.
func (a *Architect) canonical(state *turn.State) *turn.ArchitectSpec {
	requestType := turn.RequestCasual
	if state.Plan != nil {
		requestType = state.Plan.RequestType
	}

	spec, ok := catalogue[templateKey{requestType, state.Track}]
	if !ok {
		// Fall back to the quality template for the request type, then
		// to the casual template.
		spec, ok = catalogue[templateKey{requestType, turn.TrackQuality}]
		if !ok {
			spec = catalogue[templateKey{turn.RequestCasual, turn.TrackFast}]
		}
	}

	pinStatus(&spec, state.AnswerType)
	return &spec
}

// pinStatus enforces the STATUS invariants regardless of template content.
func pinStatus(spec *turn.ArchitectSpec, at turn.AnswerType) {
	if !at.IsStatus() {
		return
	}
	spec.CitationsRequired = true
	if !hasSection(spec.RequiredSections, EvidenceSection) {
		spec.RequiredSections = append(spec.RequiredSections, EvidenceSection)
	}
}

// Validate checks a spec against the structural schema and the STATUS
// invariants for the given answer type.
func Validate(spec *turn.ArchitectSpec, at turn.AnswerType) error {
	switch spec.Format {
	case turn.FormatMarkdown, turn.FormatJSON, turn.FormatHybrid:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidSpec, spec.Format)
	}
	if spec.MaxLength <= 0 {
		return fmt.Errorf("%w: max_length must be positive", ErrInvalidSpec)
	}
	if at.IsStatus() {
		if !spec.CitationsRequired {
			return fmt.Errorf("%w: STATUS specs require citations", ErrInvalidSpec)
		}
		if !hasSection(spec.RequiredSections, EvidenceSection) {
			return fmt.Errorf("%w: STATUS specs require an evidence section", ErrInvalidSpec)
		}
	}
	return nil
}

func hasSection(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}

func buildPrompt(state *turn.State, canonical *turn.ArchitectSpec) string {
	base, _ := json.Marshal(canonical)

	var b strings.Builder
	b.WriteString("응답 구조 계약을 다듬어 JSON으로만 출력하세요. 섹션 추가는 허용, 삭제는 금지.\n")
	b.WriteString("기본 계약: ")
	b.Write(base)
	b.WriteString("\n질문: ")
	b.WriteString(state.NormalizedQuery)
	return b.String()
}
