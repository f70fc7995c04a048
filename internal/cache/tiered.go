package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Tier prefixes keep the three caches disjoint in a shared backing.
const (
	tierNormalization = "norm:"
	tierNegative      = "neg:"
	tierClass         = "cls:"
)

// NormalizationEntry caches a resolved normalization (raw_fp → normalized).
type NormalizationEntry struct {
	Normalized string `json:"normalized"`
	Layer      string `json:"layer"`
}

// ClassificationEntry caches a classification (normalized_fp → intent).
type ClassificationEntry struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// TTLs holds the per-tier expirations.
type TTLs struct {
	Normalization  time.Duration
	Negative       time.Duration
	Classification time.Duration
}

// DefaultTTLs returns the production tier TTLs.
func DefaultTTLs() TTLs {
	return TTLs{
		Normalization:  time.Hour,
		Negative:       3 * time.Minute,
		Classification: 10 * time.Minute,
	}
}

// Tiered is the three-tier query cache. Primary may be nil or unhealthy; the
// shadow memory store always answers within budget. Writes go to both.
type Tiered struct {
	primary Store // Redis, breaker-guarded; may be nil
	shadow  Store // in-process LRU
	ttls    TTLs
}

// NewTiered builds the tiered cache. primary may be nil for degraded mode.
func NewTiered(primary Store, shadow Store, ttls TTLs) *Tiered {
	if shadow == nil {
		shadow = NewMemoryStore(0)
	}
	return &Tiered{primary: primary, shadow: shadow, ttls: ttls}
}

// GetNormalization looks up a cached normalization by raw fingerprint.
func (t *Tiered) GetNormalization(ctx context.Context, rawFP string) (NormalizationEntry, bool) {
	var entry NormalizationEntry
	ok := t.get(ctx, tierNormalization+rawFP, &entry)
	return entry, ok
}

// SetNormalization caches a resolved normalization.
func (t *Tiered) SetNormalization(ctx context.Context, rawFP string, entry NormalizationEntry) {
	t.set(ctx, tierNormalization+rawFP, entry, t.ttls.Normalization)
}

// GetNegative reports whether the raw fingerprint recently resolved UNKNOWN.
func (t *Tiered) GetNegative(ctx context.Context, rawFP string) bool {
	var marker struct{}
	return t.get(ctx, tierNegative+rawFP, &marker)
}

// SetNegative records that the raw fingerprint resolved UNKNOWN.
func (t *Tiered) SetNegative(ctx context.Context, rawFP string) {
	t.set(ctx, tierNegative+rawFP, struct{}{}, t.ttls.Negative)
}

// GetClassification looks up a cached classification by normalized fingerprint.
func (t *Tiered) GetClassification(ctx context.Context, normFP string) (ClassificationEntry, bool) {
	var entry ClassificationEntry
	ok := t.get(ctx, tierClass+normFP, &entry)
	return entry, ok
}

// SetClassification caches a classification result.
func (t *Tiered) SetClassification(ctx context.Context, normFP string, entry ClassificationEntry) {
	t.set(ctx, tierClass+normFP, entry, t.ttls.Classification)
}

// get tries the primary first, falling back to the shadow. Primary errors
// (including an open breaker) are swallowed; the cache is best-effort.
func (t *Tiered) get(ctx context.Context, key string, out any) bool {
	if t.primary != nil {
		if raw, ok, err := t.primary.Get(ctx, key); err == nil && ok {
			if json.Unmarshal([]byte(raw), out) == nil {
				return true
			}
		}
	}

	raw, ok, err := t.shadow.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

// set writes to both backings; failures are ignored.
func (t *Tiered) set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if t.primary != nil {
		_ = t.primary.Set(ctx, key, string(raw), ttl)
	}
	_ = t.shadow.Set(ctx, key, string(raw), ttl)
}
