package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pacificaqd/airquality-etl/internal/domain"
	"github.com/pacificaqd/airquality-etl/internal/pipeline"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RunReporter exposes the scope outcomes of the current pipeline run.
type RunReporter interface {
	Results() []pipeline.Result
}

// Server exposes health, readiness, metrics, run report, and breakpoint
// table endpoints.
type Server struct {
	httpServer *http.Server
	registry   *domain.BreakpointRegistry
	logger     *slog.Logger
}

// NewServer creates the ops HTTP server.
func NewServer(addr string, ready ReadinessChecker, runs RunReporter, registry *domain.BreakpointRegistry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		registry: registry,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.HandleFunc("GET /runs", handleRuns(runs))
	mux.HandleFunc("GET /breakpoints", s.handleBreakpoints)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func handleRuns(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		results := runs.Results()
		sort.Slice(results, func(i, j int) bool {
			a, b := results[i].Scope, results[j].Scope
			if a.ParameterCode != b.ParameterCode {
				return a.ParameterCode < b.ParameterCode
			}
			return a.Year < b.Year
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"scopes":  len(results),
			"results": results,
		})
	}
}

// handleBreakpoints serves the registered breakpoint tables so operators
// can confirm which revision a run used without reading source.
func (s *Server) handleBreakpoints(w http.ResponseWriter, _ *http.Request) {
	params := s.registry.Parameters()
	sort.Strings(params)

	tables := make([]domain.Table, 0, len(params)*2)
	for _, code := range params {
		versions := s.registry.Versions(code)
		sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
		tables = append(tables, versions...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cutover_date": domain.CutoverDate.Format("2006-01-02"),
		"tables":       tables,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort ops response
}
