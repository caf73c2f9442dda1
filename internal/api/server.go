// Package api exposes the dashboard-facing HTTP surface: health
// snapshots, on-demand diagnostics and repairs, Prometheus metrics,
// and a websocket stream of system state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shizukutanaka/Kaifuku/internal/cache"
	"github.com/shizukutanaka/Kaifuku/internal/config"
	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
	"github.com/shizukutanaka/Kaifuku/internal/engine"
)

const systemCacheKey = "system_health"

// Service is the engine surface the API consumes
type Service interface {
	GetSystemHealth() engine.SystemHealth
	RunDiagnostics(ctx context.Context) []diagnostics.Result
	AutoRepair(ctx context.Context) (engine.CycleReport, error)
	ApplyFix(ctx context.Context, name string) engine.AutoFix
	IsMonitoringActive() bool
	Stats() engine.Stats
}

// Server is the HTTP server for the monitoring dashboard
type Server struct {
	logger *zap.Logger
	cfg    config.APIConfig
	svc    Service
	cache  *cache.SnapshotCache
	router *mux.Router
	http   *http.Server
}

// NewServer builds the router. The snapshot cache is optional; without
// it every system request hits the engine directly.
func NewServer(logger *zap.Logger, cfg config.APIConfig, svc Service, snapCache *cache.SnapshotCache) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		svc:    svc,
		cache:  snapCache,
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/system", s.handleSystem).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/diagnostics", s.handleDiagnostics).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/repair", s.handleAutoRepair).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/repair/{name}", s.handleApplyFix).Methods(http.MethodPost)

	if cfg.EnablePrometheus {
		registry := prometheus.NewRegistry()
		registry.MustRegister(NewCollector(svc))
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if cfg.EnableWebSocket {
		s.router.HandleFunc("/api/v1/ws", s.handleWebSocket)
	}

	return s
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": s.svc.IsMonitoringActive(),
	})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		var cached engine.SystemHealth
		if err := s.cache.Get(systemCacheKey, &cached); err == nil {
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	view := s.svc.GetSystemHealth()

	if s.cache != nil {
		if err := s.cache.Set(systemCacheKey, view); err != nil {
			s.logger.Warn("Failed to cache system snapshot", zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	results := s.svc.RunDiagnostics(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

func (s *Server) handleAutoRepair(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.AutoRepair(r.Context())
	if errors.Is(err, engine.ErrCycleInProgress) {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleApplyFix(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	fix := s.svc.ApplyFix(r.Context(), name)
	s.writeJSON(w, http.StatusOK, fix)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
