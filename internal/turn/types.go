// Package turn defines the data model carried through a single assistant turn:
// the mutable TurnState, the stage contracts (AnalystPlan, ArchitectSpec),
// retrieval evidence, Guardian verdicts, and the final ResponseContract.
// All pipeline stages communicate exclusively through these types.
package turn

import "time"

// AnswerType classifies the expected output shape of a turn.
// The classification governs which evidence sources are allowed.
type AnswerType string

const (
	AnswerStatusMetric    AnswerType = "STATUS_METRIC"
	AnswerStatusList      AnswerType = "STATUS_LIST"
	AnswerStatusDrilldown AnswerType = "STATUS_DRILLDOWN"
	AnswerHowtoPolicy     AnswerType = "HOWTO_POLICY"
	AnswerMixed           AnswerType = "MIXED"
	AnswerCasual          AnswerType = "CASUAL"
)

// IsStatus reports whether the answer type is one of the STATUS_* family.
func (a AnswerType) IsStatus() bool {
	switch a {
	case AnswerStatusMetric, AnswerStatusList, AnswerStatusDrilldown:
		return true
	}
	return false
}

// RequestType is the coarse intent category produced by the Analyst.
type RequestType string

const (
	RequestStatus RequestType = "STATUS"
	RequestHowto  RequestType = "HOWTO"
	RequestDesign RequestType = "DESIGN"
	RequestData   RequestType = "DATA"
	RequestMixed  RequestType = "MIXED"
	RequestCasual RequestType = "CASUAL"
)

// Track selects the generation/verification path for a turn.
type Track string

const (
	// TrackFast is the low-latency path checked by the Light Guardian.
	TrackFast Track = "FAST"

	// TrackQuality is the evidence-heavy path checked by the Full Guardian.
	TrackQuality Track = "QUALITY"
)

// Source identifies where a piece of evidence originated.
type Source string

const (
	SourceDB     Source = "db"
	SourceGraph  Source = "graph"
	SourceDoc    Source = "doc"
	SourcePolicy Source = "policy"
)

// ValidSources is the closed set of evidence sources the pipeline knows.
var ValidSources = []Source{SourceDB, SourceGraph, SourceDoc, SourcePolicy}

// IsValidSource reports whether s is a member of ValidSources.
func IsValidSource(s Source) bool {
	for _, v := range ValidSources {
		if s == v {
			return true
		}
	}
	return false
}

// NormalizationLayer records which normalization layer rewrote the query.
type NormalizationLayer string

const (
	LayerL1   NormalizationLayer = "L1"
	LayerL2   NormalizationLayer = "L2"
	LayerL3   NormalizationLayer = "L3"
	LayerNone NormalizationLayer = "none"
)

// EvidenceItem is a reference to a concrete retrievable fact supporting a
// claim in the response. Evidence is append-only within a turn.
type EvidenceItem struct {
	// Source is the backend the item came from (db, graph, doc, policy).
	Source Source `json:"source"`

	// Ref is a stable key for the fact, e.g. an issue key or chunk ID.
	Ref string `json:"ref"`

	// Payload carries the retrieved content.
	Payload string `json:"payload"`

	// Confidence is the retrieval confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// FreshnessSeconds is the age of the underlying fact at retrieval time.
	FreshnessSeconds int64 `json:"freshness_seconds"`
}

// TimeRange bounds a status query. Zero values mean "current KST week".
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Scope narrows a plan to a project, an optional entity, and a time range.
type Scope struct {
	ProjectID string    `json:"project_id"`
	Entity    string    `json:"entity,omitempty"`
	TimeRange TimeRange `json:"time_range,omitempty"`
}

// AnalystPlan is the validated plan produced before any retrieval runs.
type AnalystPlan struct {
	Intent                 string      `json:"intent"`
	RequestType            RequestType `json:"request_type"`
	Track                  Track       `json:"track"`
	Scope                  Scope       `json:"scope"`
	RequiredSources        []Source    `json:"required_sources"`
	ForbiddenSources       []Source    `json:"forbidden_sources,omitempty"`
	ClarificationQuestions []string    `json:"clarification_questions,omitempty"`
	ExpectedSchema         string      `json:"expected_schema,omitempty"`
}

// Requires reports whether the plan lists s as a required source.
func (p *AnalystPlan) Requires(s Source) bool {
	for _, r := range p.RequiredSources {
		if r == s {
			return true
		}
	}
	return false
}

// Forbids reports whether the plan lists s as a forbidden source.
func (p *AnalystPlan) Forbids(s Source) bool {
	for _, f := range p.ForbiddenSources {
		if f == s {
			return true
		}
	}
	return false
}

// SpecFormat is the output format the Architect pins for generation.
type SpecFormat string

const (
	FormatMarkdown SpecFormat = "markdown"
	FormatJSON     SpecFormat = "json"
	FormatHybrid   SpecFormat = "hybrid"
)

// ArchitectSpec is the response-structure contract validated before
// generation. For STATUS answer types CitationsRequired is always true and
// RequiredSections contains an evidence section that anchors numbers to
// evidence refs.
type ArchitectSpec struct {
	Format            SpecFormat `json:"format"`
	RequiredSections  []string   `json:"required_sections"`
	ForbiddenContent  []string   `json:"forbidden_content,omitempty"`
	DomainTerms       []string   `json:"domain_terms,omitempty"`
	CitationsRequired bool       `json:"citations_required"`
	MaxLength         int        `json:"max_length"`
}

// Verdict is the Guardian's decision for a draft.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictRetry Verdict = "RETRY"
	VerdictFail  Verdict = "FAIL"
)

// CheckKind names a Guardian check family.
type CheckKind string

const (
	CheckPolicy   CheckKind = "policy"
	CheckEvidence CheckKind = "evidence"
	CheckContract CheckKind = "contract"
)

// GuardianReport is the structured outcome of a Guardian pass.
// A report whose FailingChecks contain CheckPolicy is never retriable.
type GuardianReport struct {
	Verdict         Verdict     `json:"verdict"`
	Reasons         []string    `json:"reasons,omitempty"`
	RequiredActions []string    `json:"required_actions,omitempty"`
	FailingChecks   []CheckKind `json:"failing_checks,omitempty"`
}

// HasFailingCheck reports whether kind is among the failing checks.
func (r *GuardianReport) HasFailingCheck(kind CheckKind) bool {
	for _, c := range r.FailingChecks {
		if c == kind {
			return true
		}
	}
	return false
}

// RecoveryAction is a single self-healing step proposed by the planner.
type RecoveryAction struct {
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
	Priority int    `json:"priority"`
}

// RecoveryPlan is a priority-ordered list of actions offered when the
// pipeline cannot answer. The planner never executes actions itself.
type RecoveryPlan struct {
	Actions []RecoveryAction `json:"actions"`
	Reason  string           `json:"reason"`
}
