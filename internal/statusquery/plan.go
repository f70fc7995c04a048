package statusquery

import (
	"encoding/json"
	"fmt"
	"time"
)

// Plan is a validated status query: whitelisted scope, bounded time range,
// whitelisted filter columns, and metric names from the fixed registry.
type Plan struct {
	Scope     string            `json:"scope"`
	ProjectID string            `json:"project_id"`
	TimeRange PlanTimeRange     `json:"time_range"`
	Filters   map[string]string `json:"filters,omitempty"`
	Output    []string          `json:"output"`
}

// PlanTimeRange bounds the query. A zero range means the current KST week.
type PlanTimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// IsZero reports whether the range is unset.
func (r PlanTimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate checks every name the plan references against the whitelist.
// Unknown names are rejected here, before any SQL synthesis. A valid plan
// is returned unchanged, so serialization round-trips through validation.
func (p *Plan) Validate(reg *Registry) error {
	if p.ProjectID == "" {
		return fmt.Errorf("plan missing project_id")
	}
	if !reg.HasScope(p.Scope) {
		return fmt.Errorf("%w: %q", ErrUnknownScope, p.Scope)
	}
	if len(p.Output) == 0 {
		return ErrEmptyOutput
	}
	for _, metric := range p.Output {
		if !reg.HasMetric(metric) {
			return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
		}
	}
	for column := range p.Filters {
		if !reg.HasFilter(column) {
			return fmt.Errorf("%w: %q", ErrUnknownFilter, column)
		}
	}
	if !p.TimeRange.IsZero() && !p.TimeRange.End.After(p.TimeRange.Start) {
		return fmt.Errorf("time range end must be after start")
	}
	return nil
}

// Serialize renders the plan as canonical JSON (map keys sorted by the
// encoder), suitable for fingerprinting and comparison.
func (p *Plan) Serialize() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to serialize plan: %w", err)
	}
	return string(raw), nil
}
