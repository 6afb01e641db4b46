// Package server hosts the chat handler behind a chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/tracing"
)

// Options configures a Server.
type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TracingEnabled bool
	Observer       observe.Observer
	Metrics        *metrics.Collector
}

// Server binds the chat router to an address and supports graceful shutdown.
type Server struct {
	router  chi.Router
	addr    string
	httpSrv *http.Server
}

// NewRouter mounts chat on every path. Requests with methods chi does not
// route are handed to chat as well, so they still get CORS headers and a
// JSON 405.
func NewRouter(chat http.Handler, observer observe.Observer, collector *metrics.Collector, tracingEnabled bool) chi.Router {
	if observer == nil {
		observer = observe.Nop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}
	r.Use(Instrument(observer, collector))

	r.Handle("/*", chat)
	r.MethodNotAllowed(chat.ServeHTTP)
	return r
}

// New creates a Server for the chat handler.
func New(chat http.Handler, opts Options) *Server {
	r := NewRouter(chat, opts.Observer, opts.Metrics, opts.TracingEnabled)
	return &Server{
		router: r,
		addr:   opts.Addr,
		httpSrv: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// NewMetrics creates a Server exposing the collector at /metrics.
func NewMetrics(addr string, collector *metrics.Collector) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", collector.Handler())
	return &Server{
		router: r,
		addr:   addr,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Router returns the underlying chi.Router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens until the server is shut down. A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
