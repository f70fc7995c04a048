// Package metrics is the in-process instrumentation registry. Counters are
// lock-free; histograms take a small mutex. Metric names are fixed
// constants so dashboards never chase renamed series.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metric names used across the pipeline.
const (
	TurnsTotal          = "turns_total"
	TurnErrorsTotal     = "turn_errors_total"
	CacheHitsTotal      = "cache_hits_total"
	CacheMissesTotal    = "cache_misses_total"
	L3RewritesTotal     = "l3_rewrites_total"
	GuardianRetryTotal  = "guardian_retries_total"
	GuardianFailTotal   = "guardian_failures_total"
	RecoveryPlansTotal  = "recovery_plans_total"
	ClarificationsTotal = "clarifications_total"
	TurnLatencyMS       = "turn_latency_ms"
	RetrievalLatencyMS  = "retrieval_latency_ms"
)

// DefaultLatencyBuckets are millisecond upper bounds.
var DefaultLatencyBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Counter is a monotonically increasing value.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Histogram buckets observations under fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	sum    float64
	total  int64
}

// NewHistogram creates a histogram with the given sorted upper bounds.
func NewHistogram(bounds []float64) *Histogram {
	return &Histogram{
		bounds: bounds,
		counts: make([]int64, len(bounds)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.bounds)
	for i, b := range h.bounds {
		if v <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += v
	h.total++
}

// Count returns how many values were observed.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Sum returns the running total of observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// BucketCounts returns a copy of the per-bucket counts; the final slot
// holds overflow observations.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.counts...)
}

// Registry holds the process's named metrics.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
	}
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[name]
	if !ok {
		c = &Counter{}
		r.counters[name] = c
	}
	return c
}

// Histogram returns the named histogram, creating it with the default
// latency buckets on first use.
func (r *Registry) Histogram(name string) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.histograms[name]
	if !ok {
		h = NewHistogram(DefaultLatencyBuckets)
		r.histograms[name] = h
	}
	return h
}

// CounterValue is one row of a registry dump.
type CounterValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// HistogramValue is one histogram row of a registry dump.
type HistogramValue struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
}

// Dump returns all metrics sorted by name.
func (r *Registry) Dump() ([]CounterValue, []HistogramValue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make([]CounterValue, 0, len(r.counters))
	for name, c := range r.counters {
		counters = append(counters, CounterValue{Name: name, Value: c.Value()})
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].Name < counters[j].Name })

	histograms := make([]HistogramValue, 0, len(r.histograms))
	for name, h := range r.histograms {
		histograms = append(histograms, HistogramValue{Name: name, Count: h.Count(), Sum: h.Sum()})
	}
	sort.Slice(histograms, func(i, j int) bool { return histograms[i].Name < histograms[j].Name })

	return counters, histograms
}
