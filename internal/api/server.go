// Package api exposes the engine's read surface over HTTP. Handlers
// return persisted views verbatim; nothing here recomputes analysis
// results, so a stale snapshot stays visibly stale through its embedded
// cycle timestamp.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/store"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// Runner starts one full analysis cycle, used by the on-demand trigger.
type Runner interface {
	RunOnce(ctx context.Context) (model.CycleStats, error)
}

// Server serves the engine's HTTP API.
type Server struct {
	results *store.ResultStore
	catalog *store.CatalogStore
	queue   *store.TaskQueue
	runner  Runner
	log     logging.Logger

	// running guards the on-demand trigger so overlapping manual cycles
	// cannot race each other over the persisted views.
	running sync.Mutex
}

// NewServer wires the API against the engine's stores. runner may be nil
// for read-only deployments; the trigger endpoint then returns 503.
func NewServer(results *store.ResultStore, catalog *store.CatalogStore, queue *store.TaskQueue, runner Runner, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		results: results,
		catalog: catalog,
		queue:   queue,
		runner:  runner,
		log:     log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/threats/current", s.handleCurrentThreats)
		r.Get("/threats/report/{date}", s.handleReport)
		r.Get("/alerts/recent", s.handleRecentAlerts)
		r.Post("/analysis/run", s.handleRunAnalysis)
		r.Get("/tasks/dead-letters", s.handleDeadLetters)
	})
	return r
}

type healthResponse struct {
	Status         string    `json:"status"`
	ObjectsTracked int       `json:"objects_tracked"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	LastCycleTime  time.Time `json:"last_cycle_time,omitempty"`
	QueueDepth     int64     `json:"queue_depth"`
	DeadLetters    int64     `json:"dead_letters"`
	CheckedAt      time.Time `json:"checked_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.results.Ping(ctx); err != nil {
		s.log.Error(ctx, "health check failed", logging.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	resp := healthResponse{Status: "healthy", CheckedAt: time.Now().UTC()}
	if count, err := s.catalog.Count(ctx); err == nil {
		resp.ObjectsTracked = count
	}
	if snap, ok, err := s.results.CurrentSnapshot(ctx); err == nil && ok {
		resp.LastCycleID = snap.CycleID
		resp.LastCycleTime = snap.AnalysisTime
	}
	if s.queue != nil {
		if queued, dead, err := s.queue.Depths(ctx); err == nil {
			resp.QueueDepth = queued
			resp.DeadLetters = dead
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentThreats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok, err := s.results.CurrentSnapshot(ctx)
	if err != nil {
		s.serverError(w, r, "load current snapshot", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis results available yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

var reportDateRe = regexp.MustCompile(`^\d{8}$`)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := chi.URLParam(r, "date")
	if !reportDateRe.MatchString(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYYMMDD")
		return
	}

	report, ok, err := s.results.Report(ctx, date)
	if err != nil {
		s.serverError(w, r, "load report", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no report for "+date)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alerts, err := s.results.RecentAlerts(ctx)
	if err != nil {
		s.serverError(w, r, "load alerts", err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleRunAnalysis kicks off one cycle in the background and reports
// acceptance. Results land in the persisted views like any scheduled
// cycle; callers poll /v1/threats/current for them.
func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis trigger not available")
		return
	}
	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "an analysis cycle is already running")
		return
	}

	go func() {
		defer s.running.Unlock()
		ctx := context.Background()
		stats, err := s.runner.RunOnce(ctx)
		if err != nil {
			s.log.Error(ctx, "manual analysis cycle failed", logging.Err(err))
			return
		}
		s.log.Info(ctx, "manual analysis cycle complete",
			logging.Int("threats", stats.ThreatsFound))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.queue == nil {
		writeError(w, http.StatusNotFound, "task queue not configured")
		return
	}

	limit := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	items, err := s.queue.DeadLetters(ctx, limit)
	if err != nil {
		s.serverError(w, r, "load dead letters", err)
		return
	}
	if items == nil {
		items = []model.DeadLetterItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dead_letters": items,
		"count":        len(items),
	})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.Error(r.Context(), op+" failed", logging.Err(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
