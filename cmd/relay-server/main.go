package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/httpserver"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/app"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
)

func runGracefulShutdown(srv *httpserver.Server, rt *app.Runtime) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		rt.Close()
		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRuntime(cfg *config.Config, clock clockwork.Clock) *app.Runtime {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := app.New(ctx, cfg, clock, "server")
	if err != nil {
		slog.Error("Failed to set up relay runtime", "error", err)
		os.Exit(1)
	}
	return rt
}

func healthChecks(rt *app.Runtime) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "redis", Check: rt.Ping},
	}
	if rt.Redis != nil {
		checks = append(checks, httpserver.BreakerCheck(rt.Redis.BreakerState))
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay server starting", "env", cfg.AppEnv, "port", cfg.Port)

	rt := setupRuntime(cfg, clock)
	rt.Start(context.Background())

	deps := httpserver.Dependencies{
		Registry:     rt.Registry,
		Coordinator:  rt.Coordinator,
		Clock:        clock,
		Prometheus:   rt.Prometheus,
		HTTPMetrics:  metrics.NewHTTPMetrics(rt.Prometheus),
		WSMetrics:    metrics.NewWebSocketMetrics(rt.Prometheus),
		HealthChecks: healthChecks(rt),
		Build:        rt.Version(),
	}
	// Leave Instances nil rather than a typed-nil *Presence.
	if rt.Presence != nil {
		deps.Instances = rt.Presence
	}
	srv := httpserver.NewServer(cfg, deps)

	done := runGracefulShutdown(srv, rt)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
