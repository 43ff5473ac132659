// Package server exposes the pipeline over HTTP. Runs are accepted
// asynchronously and their progress is read back from the status ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"video-agent/config"
	"video-agent/ledger"
	"video-agent/logging"
	"video-agent/pipeline"
	"video-agent/types"
)

// Runner executes one run under a caller-chosen id
type Runner interface {
	Run(ctx context.Context, runID string, req pipeline.Request) (*types.Run, error)
}

// Server owns the router and the background runs it started.
type Server struct {
	runner Runner
	ledger ledger.Ledger
	cfg    config.ServerConfig

	// ctx parents every background run; cancel it to stop them
	ctx   context.Context
	slots chan struct{}
	wg    sync.WaitGroup

	newID func() string
}

// New creates a server. Background runs inherit ctx, so cancelling it stops
// them; Wait blocks until they have all returned.
func New(ctx context.Context, runner Runner, led ledger.Ledger, cfg config.ServerConfig) *Server {
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 1
	}
	if led == nil {
		led = ledger.Nop{}
	}
	return &Server{
		runner: runner,
		ledger: led,
		cfg:    cfg,
		ctx:    ctx,
		slots:  make(chan struct{}, cfg.MaxRuns),
		newID:  pipeline.NewRunID,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if n := s.cfg.RateLimitPerMinute; n > 0 {
			r.Use(rateLimit(n))
		}
		r.Post("/runs", s.createRun)
		r.Get("/runs/{id}", s.getRun)
	})
	return r
}

// Wait blocks until every background run has returned
func (s *Server) Wait() {
	s.wg.Wait()
}

type createResponse struct {
	RunID string `json:"run_id"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Detail: err.Error()})
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:  "busy",
			Detail: fmt.Sprintf("%d runs already in progress", cap(s.slots)),
		})
		return
	}

	id := s.newID()
	log := logging.FromContext(r.Context(), "server")
	ctx := logging.ContextWithRequestID(s.ctx, middleware.GetReqID(r.Context()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		if _, err := s.runner.Run(ctx, id, req); err != nil {
			log.Warn().Err(err).Str("run_id", id).Msg("background run failed")
		}
	}()

	log.Info().Str("run_id", id).Str("topic", req.Topic).Msg("run accepted")
	w.Header().Set("Location", "/v1/runs/"+id)
	writeJSON(w, http.StatusAccepted, createResponse{RunID: id})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.ledger.Get(r.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Detail: id})
		return
	case err != nil:
		logging.FromContext(r.Context(), "server").Error().Err(err).Str("run_id", id).Msg("ledger read failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "ledger_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limit_exceeded"})
		}),
	)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logging.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.FromContext(ctx, "http").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
