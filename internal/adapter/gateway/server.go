// Package gateway exposes the relay over HTTP: an OpenAI-compatible chat
// completions endpoint that streams via SSE, plus status and metrics
// endpoints for operators.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"toolseek/internal/domain"
	"toolseek/internal/infra/config"
	"toolseek/internal/infra/middleware"
	"toolseek/internal/usecase"
)

// TurnRunner drives one client-visible chat turn through the tool loop.
type TurnRunner interface {
	RunTurn(ctx context.Context, req domain.ChatRequest) <-chan domain.StreamDelta
	Metrics() usecase.MetricsSnapshot
}

// BreakerStatus exposes circuit breaker state for the status endpoint.
type BreakerStatus interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// Deps holds the collaborators the HTTP handlers need.
type Deps struct {
	Turns   TurnRunner
	LLM     domain.LLMProvider // non-streaming passthrough and provider name
	Breaker BreakerStatus      // can be nil (breaker disabled)
	Logger  *slog.Logger
	Version string
}

// Server is the HTTP front of the relay.
type Server struct {
	deps      Deps
	cfg       config.ServerConfig
	httpSrv   *http.Server
	boundAddr string
	startTime time.Time
}

// NewServer creates the gateway server. Start must be called to bind.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	return &Server{deps: deps, cfg: cfg, startTime: time.Now()}
}

// Start begins serving. Blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = middleware.SecurityHeaders(handler)
	if s.cfg.CORSEnabled {
		handler = middleware.CORS(handler)
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	// WriteTimeout stays zero unless configured: a streaming response is
	// held open for the whole turn and must not be cut by the server.
	s.httpSrv = &http.Server{
		Handler:           handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	s.deps.Logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, waiting for in-flight streams up to
// the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
