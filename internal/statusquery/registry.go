// Package statusquery implements the deterministic status-query subsystem:
// a whitelist registry of metrics, columns, and filters; validated query
// plans; parameterised SQL synthesis; and KST week boundary arithmetic.
// The executor refuses anything the registry does not name, which is the
// primary defense against prompt-injection-driven SQL.
package statusquery

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryYAML []byte

var (
	ErrUnknownMetric = errors.New("metric not in whitelist registry")
	ErrUnknownFilter = errors.New("filter column not in whitelist registry")
	ErrUnknownScope  = errors.New("scope not in whitelist registry")
	ErrEmptyOutput   = errors.New("plan output names no metrics")
)

// MetricDef is one whitelisted metric with its parameterised SQL.
// Placeholders: $1 project_id, $2 range start, $3 range end.
type MetricDef struct {
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
	SQL         string `yaml:"sql"`
}

// Registry is the whitelist shipped with the core. Every metric, scope, and
// filter column a plan references must appear here.
type Registry struct {
	Scopes  []string             `yaml:"scopes"`
	Filters []string             `yaml:"filters"`
	Metrics map[string]MetricDef `yaml:"metrics"`
}

// LoadRegistry parses the embedded whitelist registry.
func LoadRegistry() (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(registryYAML, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse whitelist registry: %w", err)
	}
	if len(reg.Metrics) == 0 {
		return nil, errors.New("whitelist registry defines no metrics")
	}
	return &reg, nil
}

// HasMetric reports whether name is a whitelisted metric.
func (r *Registry) HasMetric(name string) bool {
	_, ok := r.Metrics[name]
	return ok
}

// HasFilter reports whether column is a whitelisted filter column.
func (r *Registry) HasFilter(column string) bool {
	for _, f := range r.Filters {
		if f == column {
			return true
		}
	}
	return false
}

// HasScope reports whether scope is whitelisted.
func (r *Registry) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// MetricNames returns the whitelisted metric names in stable sorted order.
func (r *Registry) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
