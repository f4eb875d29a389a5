// Package server exposes the asset lifecycle over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/server/handler"
	"github.com/alanyoungcy/actus/internal/server/middleware"
	"github.com/alanyoungcy/actus/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when set.
	APIKey string
	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the endpoint handlers.
type Handlers struct {
	Health      *handler.HealthHandler
	Assets      *handler.AssetHandler
	Data        *handler.DataHandler
	Settlements *handler.SettlementHandler
	Schedule    *handler.ScheduleHandler
}

// Server is the HTTP and websocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter and hub may be nil.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           routes(cfg, h, hub, limiter, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func routes(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/assets", h.Assets.Create)
	mux.HandleFunc("GET /api/assets", h.Assets.List)
	mux.HandleFunc("GET /api/assets/{id}", h.Assets.Get)
	mux.HandleFunc("GET /api/assets/{id}/schedule", h.Assets.Schedule)
	mux.HandleFunc("GET /api/assets/{id}/payments", h.Assets.Payments)
	mux.HandleFunc("POST /api/assets/{id}/progress", h.Assets.Progress)
	mux.HandleFunc("POST /api/assets/{id}/progress-with", h.Assets.ProgressWith)

	mux.HandleFunc("POST /api/datapoints", h.Data.Publish)
	mux.HandleFunc("GET /api/datapoints/{code}", h.Data.History)
	mux.HandleFunc("POST /api/settlements", h.Settlements.Record)
	mux.HandleFunc("POST /api/schedule/preview", h.Schedule.Preview)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	window := cfg.RateWindow
	if window <= 0 {
		window = time.Second
	}
	var out http.Handler = mux
	out = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(out)
	out = middleware.Auth(cfg.APIKey, "/api/health")(out)
	out = middleware.Recover(logger)(out)
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Handler exposes the routed handler chain.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
