package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/chat"
	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/server"
	"github.com/allaspectsdev/chatproxy/internal/tracing"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
	"github.com/allaspectsdev/chatproxy/internal/vault"
	"github.com/allaspectsdev/chatproxy/internal/version"
)

const (
	shutdownTimeout = 30 * time.Second
	// encodingTimeout bounds how long startup logging waits for the token
	// encoding download. Requests never wait for it.
	encodingTimeout = 30 * time.Second
)

// Stack is the request-serving part of the process, shared by the
// long-running server and the Lambda entry point.
type Stack struct {
	Handler  http.Handler
	Observer observe.Observer
	Metrics  *metrics.Collector
}

// NewStack resolves key references, then wires the chat handler behind the
// router. A failed key reference is logged and leaves that credential empty,
// which the handler reports per request.
func NewStack(cfg *config.Config, logger zerolog.Logger, collector *metrics.Collector) *Stack {
	if err := cfg.ResolveSecrets(vault.New()); err != nil {
		logger.Warn().Err(err).Msg("failed to resolve one or more key references")
	}
	if !cfg.Completion.Configured() {
		logger.Warn().Msg("completion API key is not configured; chat requests will return 500")
	}
	if !cfg.Shopify.Configured() {
		logger.Warn().Msg("shopify credentials are not configured; replies will use placeholder store data")
	}

	observer := observe.NewLogger(logger)
	up := upstream.NewClient(observer, collector)
	handler := chat.NewHandler(cfg, up, observer, collector)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), encodingTimeout)
		defer cancel()
		if err := handler.Preload(ctx); err != nil {
			logger.Warn().Err(err).Msg("token encoding unavailable; prompt blocks are trimmed by approximate length")
			return
		}
		logger.Debug().Msg("token encoding ready")
	}()

	return &Stack{
		Handler:  server.NewRouter(handler, observer, collector, cfg.Tracing.Enabled),
		Observer: observer,
		Metrics:  collector,
	}
}

// InitTracing installs the global tracer provider when tracing is enabled.
// The returned shutdown function is never nil.
func InitTracing(ctx context.Context, cfg config.TracingConfig, logger zerolog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop
	}
	shutdown, err := tracing.Init(ctx, cfg, version.Version)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialise tracing; continuing without it")
		return noop
	}
	logger.Info().Str("exporter", cfg.Exporter).Str("endpoint", cfg.Endpoint).Msg("tracing enabled")
	return shutdown
}

// Run starts the chat server (and the metrics listener when configured) and
// blocks until SIGINT or SIGTERM. configFile, if non-empty, is watched so the
// log level can change without a restart.
func Run(cfg *config.Config, configFile string) error {
	zerolog.SetGlobalLevel(ParseLogLevel(cfg.Server.LogLevel))
	logger := NewLogger(os.Stderr, cfg.Server.LogFormat)

	logger.Info().
		Str("version", version.Version).
		Str("config_file", configFile).
		Msg("chatproxy starting")

	tracingShutdown := InitTracing(context.Background(), cfg.Tracing, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	stack := NewStack(cfg, logger, collector)

	if configFile != "" {
		w, err := config.Watch(configFile, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(_, newCfg *config.Config) {
				zerolog.SetGlobalLevel(ParseLogLevel(newCfg.Server.LogLevel))
				logger.Info().
					Str("log_level", newCfg.Server.LogLevel).
					Msg("configuration reloaded; settings other than log_level apply after restart")
			})
		}
	}

	chatSrv := server.New(stack.Handler, server.Options{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		TracingEnabled: cfg.Tracing.Enabled,
		Observer:       stack.Observer,
		Metrics:        collector,
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", chatSrv.Addr()).Msg("chat server starting")
		if err := chatSrv.Start(); err != nil {
			errCh <- fmt.Errorf("chat server: %w", err)
		}
	}()

	var metricsSrv *server.Server
	if cfg.Server.MetricsPort != 0 {
		metricsSrv = server.NewMetrics(fmt.Sprintf(":%d", cfg.Server.MetricsPort), collector)
		go func() {
			logger.Info().Str("addr", metricsSrv.Addr()).Msg("metrics server starting")
			if err := metricsSrv.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("fatal server error")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down servers...")
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}
	if err := chatSrv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown error")
	}

	logger.Info().Msg("chatproxy stopped")
	return nil
}
