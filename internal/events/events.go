// Package events emits the pipeline's observability events. Emission is
// asynchronous and best-effort: a full queue drops the event rather than
// slow the turn. Field values are PII-masked before they leave the emitter.
//
// Three tiers exist: trace events always fire, provenance events are
// sampled, and debug events carry full detail for failed turns.
package events

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maru-labs/maru/internal/policy"
	"github.com/maru-labs/maru/internal/trace"
)

// Tier labels the event's retention class.
type Tier string

const (
	TierTrace      Tier = "trace"
	TierProvenance Tier = "provenance"
	TierDebug      Tier = "debug"
)

// Event is one emitted record.
type Event struct {
	Time      time.Time         `json:"time"`
	Tier      Tier              `json:"tier"`
	Stage     string            `json:"stage"`
	TraceID   string            `json:"trace_id"`
	SessionID string            `json:"session_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink receives events in emission order.
type Sink interface {
	Emit(Event)
}

// Ring is a fixed-capacity in-memory sink; new events overwrite the oldest.
type Ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

// NewRing creates a ring buffer sink.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Ring{buf: make([]Event, capacity)}
}

func (r *Ring) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the buffered events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...)
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Emitter queues events to a sink without blocking the caller.
type Emitter struct {
	sink             Sink
	logger           *zap.Logger
	provenanceSample float64
	sample           func() float64

	queue chan Event
	done  chan struct{}
	once  sync.Once
}

// NewEmitter starts the background drain goroutine.
func NewEmitter(sink Sink, logger *zap.Logger, provenanceSample float64) *Emitter {
	e := &Emitter{
		sink:             sink,
		logger:           logger,
		provenanceSample: provenanceSample,
		sample:           rand.Float64,
		queue:            make(chan Event, 256),
		done:             make(chan struct{}),
	}
	go e.drain()
	return e
}

func (e *Emitter) drain() {
	defer close(e.done)
	for ev := range e.queue {
		e.sink.Emit(ev)
	}
}

// Close stops the emitter after flushing queued events.
func (e *Emitter) Close() {
	e.once.Do(func() { close(e.queue) })
	<-e.done
}

// Trace emits a stage-transition event. Always fires.
func (e *Emitter) Trace(ctx context.Context, stage string, fields map[string]string) {
	e.emit(ctx, TierTrace, stage, fields)
}

// Provenance emits a sampled evidence-lineage event.
func (e *Emitter) Provenance(ctx context.Context, stage string, fields map[string]string) {
	if e.sample() >= e.provenanceSample {
		return
	}
	e.emit(ctx, TierProvenance, stage, fields)
}

// Debug emits a full-detail event. Callers reserve this tier for failed
// turns.
func (e *Emitter) Debug(ctx context.Context, stage string, fields map[string]string) {
	e.emit(ctx, TierDebug, stage, fields)
}

func (e *Emitter) emit(ctx context.Context, tier Tier, stage string, fields map[string]string) {
	masked := make(map[string]string, len(fields))
	for k, v := range fields {
		masked[k] = policy.MaskPII(v)
	}

	ev := Event{
		Time:      time.Now(),
		Tier:      tier,
		Stage:     stage,
		TraceID:   trace.TraceID(ctx),
		SessionID: trace.SessionID(ctx),
		Fields:    masked,
	}

	select {
	case e.queue <- ev:
	default:
		if e.logger != nil {
			e.logger.Debug("event queue full, dropping", zap.String("stage", stage))
		}
	}
}
