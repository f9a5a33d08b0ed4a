// Package api provides the debug/ops HTTP surface for the scheduler core:
// a thin chi router wrapping CandidateSelector.GetExerciseBatch/ScoreExercise,
// cache invalidation, a dot-graph debug export, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trane-project/scheduler-core/internal/domain"
	"github.com/trane-project/scheduler-core/internal/filter"
	"github.com/trane-project/scheduler-core/internal/observability"
	"github.com/trane-project/scheduler-core/internal/scheduler"
)

// Selector is the subset of CandidateSelector the API depends on, kept
// narrow so tests can substitute a fake.
type Selector interface {
	GetExerciseBatch(ctx context.Context, ef scheduler.ExerciseFilter) ([]domain.BatchEntry, error)
	ScoreExercise(ctx context.Context, exerciseID domain.UnitId, score domain.MasteryScore, timestamp int64) error
}

// DotGraph is the subset of the unit graph the API depends on for the
// debug dot-export endpoint.
type DotGraph interface {
	GenerateDotGraph(highlight []domain.UnitId) string
}

// Server is the scheduler debug/ops HTTP API server.
type Server struct {
	selector Selector
	graph    DotGraph
	cache    domain.ScoreCache
	tracer   *observability.Tracer
}

// NewServer creates an API server over the given selector, graph, and
// cache. tracer may be nil, in which case spans are simply not recorded.
func NewServer(selector Selector, graph DotGraph, cache domain.ScoreCache, tracer *observability.Tracer) *Server {
	return &Server{selector: selector, graph: graph, cache: cache, tracer: tracer}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batch", s.handleBatch)
		r.Post("/score", s.handleScore)
		r.Post("/invalidate", s.handleInvalidate)
		r.Post("/invalidate/prefix", s.handleInvalidatePrefix)
		r.Get("/dot", s.handleDot)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ─── /v1/batch ───────────────────────────────────────────────────────────────

// filterRequest is the wire format for an ExerciseFilter. Only a single
// leaf shape is accepted per request — enough for manual exercising and
// ops scripts; session playback across multiple slots is not exposed
// here.
type filterRequest struct {
	Type      string   `json:"type"` // "all" | "course" | "lesson" | "metadata" | "review_list"
	CourseIDs []string `json:"course_ids,omitempty"`
	LessonIDs []string `json:"lesson_ids,omitempty"`
	Metadata  *struct {
		Level   string `json:"level"` // "course" | "lesson"
		Include bool   `json:"include"`
		Key     string `json:"key"`
		Value   string `json:"value"`
	} `json:"metadata,omitempty"`
}

func (fr filterRequest) toExerciseFilter() (scheduler.ExerciseFilter, error) {
	switch fr.Type {
	case "", "all":
		return nil, nil
	case "course":
		return scheduler.UnitCourseFilter{CourseIDs: toUnitIDs(fr.CourseIDs)}, nil
	case "lesson":
		return scheduler.UnitLessonFilter{LessonIDs: toUnitIDs(fr.LessonIDs)}, nil
	case "review_list":
		return scheduler.ReviewListFilter{}, nil
	case "metadata":
		if fr.Metadata == nil {
			return nil, domain.ErrInvalidFilter
		}
		var kv filter.KeyValueFilter
		switch fr.Metadata.Level {
		case "course":
			kv = filter.CourseFilter{Include: fr.Metadata.Include, Key: fr.Metadata.Key, Value: fr.Metadata.Value}
		case "lesson":
			kv = filter.LessonFilter{Include: fr.Metadata.Include, Key: fr.Metadata.Key, Value: fr.Metadata.Value}
		default:
			return nil, domain.ErrInvalidFilter
		}
		return scheduler.MetadataFilter{Filter: kv}, nil
	default:
		return nil, domain.ErrInvalidFilter
	}
}

func toUnitIDs(ss []string) []domain.UnitId {
	out := make([]domain.UnitId, len(ss))
	for i, s := range ss {
		out[i] = domain.UnitId(s)
	}
	return out
}

type batchResponse struct {
	Exercises  []domain.BatchEntry `json:"exercises"`
	Count      int                 `json:"count"`
	CountHuman string              `json:"count_human"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r.Context(), "get_exercise_batch")

	var req filterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.endSpan(span, err)
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	ef, err := req.toExerciseFilter()
	if err != nil {
		s.endSpan(span, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.selector.GetExerciseBatch(r.Context(), ef)
	if err != nil {
		s.endSpan(span, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.endSpan(span, nil)
	writeJSON(w, http.StatusOK, batchResponse{
		Exercises:  batch,
		Count:      len(batch),
		CountHuman: humanize.Comma(int64(len(batch))),
	})
}

// ─── /v1/score ───────────────────────────────────────────────────────────────

type scoreRequest struct {
	ExerciseID string  `json:"exercise_id"`
	Score      float32 `json:"score"`
	Timestamp  int64   `json:"timestamp,omitempty"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	span := s.startSpan(r.Context(), "score_exercise")

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.endSpan(span, err)
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	err := s.selector.ScoreExercise(r.Context(), domain.UnitId(req.ExerciseID), domain.MasteryScore(req.Score), ts)
	s.endSpan(span, err)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// ─── /v1/invalidate ──────────────────────────────────────────────────────────

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UnitID string `json:"unit_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.cache.Invalidate(domain.UnitId(req.UnitID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handleInvalidatePrefix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prefix string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.cache.InvalidateWithPrefix(req.Prefix)
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ─── /v1/dot ─────────────────────────────────────────────────────────────────

func (s *Server) handleDot(w http.ResponseWriter, r *http.Request) {
	var highlight []domain.UnitId
	if q := r.URL.Query().Get("highlight"); q != "" {
		highlight = toUnitIDs(strings.Split(q, ","))
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Write([]byte(s.graph.GenerateDotGraph(highlight)))
}

// ─── Tracing helpers ─────────────────────────────────────────────────────────

func (s *Server) startSpan(ctx context.Context, op string) *observability.Span {
	if s.tracer == nil {
		return nil
	}
	return s.tracer.StartSpan(ctx, op, nil)
}

func (s *Server) endSpan(span *observability.Span, err error) {
	if s.tracer == nil || span == nil {
		return
	}
	s.tracer.EndSpan(span, err)
}

// ─── Shared helpers ──────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
		},
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
