// server.go — HTTP transport for the capture daemon.
//
// The extension posts webRequest envelopes and relayed debugger events here,
// UI surfaces poll /sync or hold a /ws connection, and settings are read and
// replaced through /settings.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/brennhill/psat-core/internal/capture"
	"github.com/brennhill/psat-core/internal/cdp"
	"github.com/brennhill/psat-core/internal/logging"
	"github.com/brennhill/psat-core/internal/metrics"
	"github.com/brennhill/psat-core/internal/push"
	"github.com/brennhill/psat-core/internal/settings"
)

const (
	// maxPostBodySize caps extension POST bodies.
	maxPostBodySize = 5 * 1024 * 1024

	// DefaultMailboxIdle is how long a polled surface may go without a
	// /sync before the dispatcher reaps it.
	DefaultMailboxIdle = 30 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Deps wires the server to the rest of the daemon.
type Deps struct {
	Capture    *capture.Capture
	Decoder    *cdp.Decoder
	Dispatcher *push.Dispatcher
	Settings   settings.Store
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Version    string

	MailboxIdle time.Duration
	Now         func() time.Time
}

// Server serves the daemon's HTTP API.
type Server struct {
	deps   Deps
	log    *zap.Logger
	router chi.Router
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.Decoder == nil {
		deps.Decoder = cdp.NewDecoder(deps.Capture, deps.Logger)
	}
	if deps.MailboxIdle <= 0 {
		deps.MailboxIdle = DefaultMailboxIdle
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, log: logging.OrNop(deps.Logger).Named("http")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.instrument)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Get("/tabs", s.handleTabs)
	r.Get("/tabs/{tabID}/snapshot", s.handleSnapshot)
	r.Get("/settings", s.handleGetSettings)
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(limitBody)
		r.Post("/events", s.handleEvents)
		r.Post("/cdp", s.handleCDP)
		r.Post("/tabs/{tabID}/switch", s.handleSwitch)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/sync", s.handleSync)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		s.log.Warn("shutdown", zap.Error(err))
		return err
	}
	return nil
}
