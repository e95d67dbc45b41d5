package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	portalapi "github.com/wecanbr/portal-gateway/api/echo"
	"github.com/wecanbr/portal-gateway/config"
	"github.com/wecanbr/portal-gateway/internal/metrics"
	"github.com/wecanbr/portal-gateway/log"
	"github.com/wecanbr/portal-gateway/session"
	"github.com/wecanbr/portal-gateway/storage"
	"github.com/wecanbr/portal-gateway/tracing"
	"github.com/wecanbr/portal-gateway/upstream"
	"github.com/wecanbr/portal-gateway/widget"
)

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zlog.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(logLevel)
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting portal-gateway...", map[string]interface{}{
		"http_port":    cfg.HTTPPort,
		"upstream_url": cfg.UpstreamBaseURL,
		"redis":        cfg.RedisURL != "",
		"log_level":    logLevel.String(),
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	metrics.Register(prometheus.DefaultRegisterer)

	registry := session.NewRegistry(session.RegistryDeps{
		NewStorage: func(sessionID string) (storage.Store, error) {
			if cfg.RedisURL != "" {
				return storage.NewRedisStore(cfg.RedisURL, sessionID, cfg.Session.RegistryTTL)
			}
			return storage.NewMemoryStore(cfg.Session.RegistryTTL), nil
		},
		NewUpstream: func(sessionID string) (session.Upstream, error) {
			return upstream.NewClient(cfg.UpstreamBaseURL)
		},
		NewWidget: func(st storage.Store) session.WidgetResetter {
			return widget.NewManager(widget.NewQueueHost(), st, cfg.Widget)
		},
		Config: cfg.Session,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	portalapi.NewPortalAPI(registry).RegisterRoutes(e)

	httpServer = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "HTTP server failed", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info(ctx, "Shutting down...", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
	}

	registry.Close()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
