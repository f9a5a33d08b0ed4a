// Package observability provides lightweight tracing and Prometheus
// metrics for the scheduler core: span recording (the HTTP API records
// get_exercise_batch and score_exercise spans), plus counters/histograms
// for the debug/ops HTTP API to expose at /metrics.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Trace Spans ────────────────────────────────────────────────────────────

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
)

// Span represents a unit of scheduler work within a trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer is an in-memory ring-buffer span recorder — no external tracing
// SDK, just enough to inspect recent get_exercise_batch/score_exercise
// activity from the debug API.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span for operation (e.g. "get_exercise_batch",
// "score_exercise", "propagate"). Caller must call EndSpan when done.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}

	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent limit spans (all of them if
// limit <= 0).
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "scheduler-trace-id"
	spanIDKey  contextKey = "scheduler-span-id"
)

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context carrying the given span ID, used as the
// next span's ParentID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

// BatchDuration tracks get_exercise_batch wall-clock latency.
var BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scheduler",
	Name:      "batch_duration_seconds",
	Help:      "get_exercise_batch latency in seconds.",
	Buckets:   prometheus.DefBuckets,
})

// CandidatesFound tracks how many candidates survived traversal and
// filtering before sampling, per batch.
var CandidatesFound = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scheduler",
	Name:      "candidates_found",
	Help:      "Number of candidates surviving traversal and filtering per batch.",
	Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
})

// CandidatesCapped counts batches where max_candidates truncated
// traversal before it completed naturally.
var CandidatesCapped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "candidates_capped_total",
	Help:      "Total batches where max_candidates truncated traversal.",
})

// CacheHits counts ScoreCache.Get calls served from the in-memory entry
// map without deriving from the stores.
var CacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "cache_hits_total",
	Help:      "Total ScoreCache reads served from the cached entry.",
})

// CacheMisses counts ScoreCache.Get calls that required deriving a score.
var CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "cache_misses_total",
	Help:      "Total ScoreCache reads that required deriving a score.",
})

// PropagationMagnitude tracks the absolute reward value applied to each
// unit touched by a single propagation run.
var PropagationMagnitude = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scheduler",
	Name:      "propagation_magnitude",
	Help:      "Absolute reward value applied per unit during propagation.",
	Buckets:   []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
})

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
