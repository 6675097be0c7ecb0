package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/handler"
	"github.com/insightshq/nl2sql-processor/internal/processor"
	"github.com/insightshq/nl2sql-processor/internal/queue"
	"github.com/insightshq/nl2sql-processor/internal/server/middleware"
	"github.com/insightshq/nl2sql-processor/internal/service"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// Probe statuses.
const (
	StatusHealthy   = "HEALTHY"
	StatusUnhealthy = "UNHEALTHY"
)

const readyProbeTimeout = 5 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	RateLimitPerMinute int
	HeartbeatTimeout   time.Duration
	Version            string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		RateLimitPerMinute: 120,
		HeartbeatTimeout:   5 * time.Minute,
		Version:            "dev",
	}
}

// ConfigFrom maps the resolved application configuration.
func ConfigFrom(c *config.Config, version string) Config {
	cfg := DefaultConfig()
	cfg.Host = c.Server.Host
	cfg.Port = c.Server.Port
	cfg.CORSOrigins = c.Server.CORSOrigins
	cfg.RateLimitPerMinute = c.Server.RateLimitPerMinute
	if c.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.Server.ShutdownTimeout
	}
	if c.Health.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = c.Health.HeartbeatTimeout
	}
	if version != "" {
		cfg.Version = version
	}
	return cfg
}

// Liveness is the view of the processing loop the probes need. The
// processor satisfies it.
type Liveness interface {
	Alive(maxAge time.Duration) bool
	Stats() processor.Stats
}

// Deps are the components the API serves from. Warehouses and Liveness are
// optional: without a processor in the same process /healthz only reports
// that the API is up.
type Deps struct {
	Store      store.Store
	Queue      queue.Queue
	Catalog    *catalog.Catalog
	Warehouses *connector.Registry
	Auth       *service.AuthService
	Liveness   Liveness
}

// Server is the status and submission API of the processor.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server and wires up all routes and middleware.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Auth == nil {
		deps.Auth = service.NewAuthService("", nil)
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.New(nil, nil)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Probes and API description (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.deps.Catalog, s.cfg.Version).ServeSpec)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimitPerMinute))
		r.Use(middleware.Authenticate(s.deps.Auth))

		requests := handler.NewRequestHandler(s.deps.Store, s.deps.Queue, s.logger)
		history := handler.NewHistoryHandler(s.deps.Store)
		views := handler.NewViewHandler(s.deps.Catalog)

		r.Post("/requests", requests.Submit)
		r.Get("/requests", requests.List)
		r.Get("/requests/{request_id}", requests.Get)

		r.Get("/conversations", history.Conversations)
		r.Get("/health-events", history.HealthEvents)

		r.Get("/views", views.List)
		r.Get("/views/{datasource}/{view}", views.Get)
	})

	s.router = r
}

// handleHealthz is the liveness probe. With a processor attached it is
// HEALTHY only while the processing loop heartbeat is fresh.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": StatusHealthy}
	code := http.StatusOK

	if lv := s.deps.Liveness; lv != nil {
		stats := lv.Stats()
		body["stats"] = stats
		if !lv.Alive(s.cfg.HeartbeatTimeout) {
			code = http.StatusServiceUnavailable
			body["status"] = StatusUnhealthy
			if stats.LastHeartbeat.IsZero() {
				body["reason"] = "processing loop has not started"
			} else {
				body["reason"] = fmt.Sprintf("no heartbeat for %s", time.Since(stats.LastHeartbeat).Round(time.Second))
			}
		}
	}

	writeProbe(w, code, body)
}

// handleReadyz is the readiness probe. Returns 200 when the store, the
// queue and every warehouse are reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if s.deps.Store != nil {
		record("store", s.deps.Store.Ping(ctx))
	}
	if s.deps.Queue != nil {
		_, err := s.deps.Queue.Peek(ctx, 1)
		record("queue", err)
	}
	if s.deps.Warehouses != nil {
		results := s.deps.Warehouses.PingAll(ctx)
		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			record("warehouse:"+id, results[id])
		}
	}

	status, code := StatusHealthy, http.StatusOK
	if !healthy {
		status, code = StatusUnhealthy, http.StatusServiceUnavailable
	}
	writeProbe(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func writeProbe(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout. The caller owns the store, queue
// and warehouse connections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
