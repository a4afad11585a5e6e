// Package server assembles the HTTP API: REST routes for opportunities,
// positions, plans and the confirmation queue, plus the wallet websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/defolio/defolio/internal/chain"
	"github.com/defolio/defolio/internal/server/handler"
	"github.com/defolio/defolio/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunitiesHandler
	Positions     *handler.PositionsHandler
	Bridge        *handler.BridgeHandler
	Plans         *handler.PlansHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain (auth,
// logging, CORS). wallet may be nil when no browser wallet is expected.
func NewServer(cfg Config, handlers Handlers, wallet *chain.WSProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.List)

	mux.HandleFunc("GET /api/positions", handlers.Positions.List)
	mux.HandleFunc("POST /api/positions/open", handlers.Positions.Open)
	mux.HandleFunc("POST /api/positions/close", handlers.Positions.Close)

	mux.HandleFunc("GET /api/bridge", handlers.Bridge.List)
	mux.HandleFunc("POST /api/bridge", handlers.Bridge.Propose)
	mux.HandleFunc("POST /api/bridge/{id}/confirm", handlers.Bridge.Confirm)
	mux.HandleFunc("POST /api/bridge/{id}/reject", handlers.Bridge.Reject)

	mux.HandleFunc("POST /api/plans/execute", handlers.Plans.Execute)

	if wallet != nil {
		mux.HandleFunc("GET /ws/wallet", wallet.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // plan execution holds the request open
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
