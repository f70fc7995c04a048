package turn

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStateFrozen  = errors.New("turn state is frozen")
	ErrMissingField = errors.New("missing required request field")
)

// Request is the single ingress payload for a turn.
type Request struct {
	RawQuery      string            `json:"raw_query"`
	SessionID     string            `json:"session_id"`
	ProjectID     string            `json:"project_id"`
	UserID        string            `json:"user_id"`
	PermissionSet []string          `json:"permission_set,omitempty"`
	Overrides     map[string]string `json:"overrides,omitempty"`
}

// Validate checks the request carries the fields every turn needs.
func (r *Request) Validate() error {
	if r.RawQuery == "" {
		return fmt.Errorf("%w: raw_query", ErrMissingField)
	}
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id", ErrMissingField)
	}
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project_id", ErrMissingField)
	}
	return nil
}

// State is the mutable record carried along the pipeline for one turn.
// Only the component whose stage is active may mutate it; Freeze is called
// when rendering starts and later writes are rejected.
type State struct {
	TraceID       string
	SessionID     string
	ProjectID     string
	UserID        string
	PermissionSet []string

	RawQuery           string
	NormalizedQuery    string
	NormalizationLayer NormalizationLayer

	AnswerType  AnswerType
	Confidence  float64
	Track       Track
	RequestType RequestType

	Plan     *AnalystPlan
	Spec     *ArchitectSpec
	Evidence []EvidenceItem
	Draft    string
	Report   *GuardianReport
	Recovery *RecoveryPlan

	RetryCount int

	StartedAt time.Time

	frozen bool
}

// NewState creates the per-turn state with a fresh trace ID.
func NewState(req *Request) *State {
	return &State{
		TraceID:            uuid.NewString(),
		SessionID:          req.SessionID,
		ProjectID:          req.ProjectID,
		UserID:             req.UserID,
		PermissionSet:      req.PermissionSet,
		RawQuery:           req.RawQuery,
		NormalizationLayer: LayerNone,
		StartedAt:          time.Now(),
	}
}

// AppendEvidence adds items to the evidence list. Appends are ordered by
// retrieval completion; callers must not assume retrieval-start order.
func (s *State) AppendEvidence(items ...EvidenceItem) error {
	if s.frozen {
		return ErrStateFrozen
	}
	s.Evidence = append(s.Evidence, items...)
	return nil
}

// EvidenceBySource partitions the evidence list by source.
func (s *State) EvidenceBySource() map[Source][]EvidenceItem {
	out := make(map[Source][]EvidenceItem)
	for _, e := range s.Evidence {
		out[e.Source] = append(out[e.Source], e)
	}
	return out
}

// Freeze marks the state immutable. Called once when rendering begins.
func (s *State) Freeze() {
	s.frozen = true
}

// Frozen reports whether the state has been frozen for render.
func (s *State) Frozen() bool {
	return s.frozen
}
