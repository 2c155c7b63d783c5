package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sjlee-dev/coinrush/internal/server/handler"
	"github.com/sjlee-dev/coinrush/internal/server/middleware"
	"github.com/sjlee-dev/coinrush/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archives is optional and only registered when object storage is wired.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Sessions *handler.SessionHandler
	Rank     *handler.RankHandler
	Prices   *handler.PriceHandler
	Stream   *handler.StreamHandler
	Archives *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the game backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the logging and CORS middleware applied. wsHub may be nil when the
// signal bus is not configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Session lifecycle.
	mux.HandleFunc("POST /api/sessions", handlers.Sessions.StartSession)
	mux.HandleFunc("GET /api/sessions/{id}", handlers.Sessions.GetSession)
	mux.HandleFunc("POST /api/sessions/{id}/sell", handlers.Sessions.SellPosition)
	mux.HandleFunc("DELETE /api/sessions/{id}", handlers.Sessions.CancelSession)

	// Leaderboard and score replay. The literal stream route takes
	// precedence over the {id} wildcard.
	mux.HandleFunc("GET /api/rank", handlers.Rank.GetRank)
	mux.HandleFunc("GET /api/scores/stream", handlers.Stream.GetScoreStream)
	mux.HandleFunc("GET /api/scores/{id}", handlers.Rank.GetScore)

	// Latest cached market prices.
	mux.HandleFunc("GET /api/prices", handlers.Prices.GetPrices)
	mux.HandleFunc("GET /api/prices/{code}", handlers.Prices.GetPrice)

	// Session archive.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{path...}", handlers.Archives.GetArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
