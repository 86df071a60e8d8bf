package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/app"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
	"github.com/pscheid92/chatrelay/internal/tools"
)

// relay-tools serves the request/reply tools over MCP stdio. It needs
// REDIS_URL to reach peers connected to a relay-server process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// stdout carries the MCP protocol.
	logging.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, tools will only reach peers inside this process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := app.New(ctx, cfg, clockwork.NewRealClock(), "tools")
	cancel()
	if err != nil {
		slog.Error("Failed to set up relay runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	rt.Start(context.Background())

	srv := tools.NewServer(rt.Coordinator, tools.Config{
		ReplyTimeout:  cfg.ReplyTimeout,
		FolderTimeout: cfg.FolderTimeout,
		FolderPath:    cfg.FolderPath,
	}, rt.Version().Short())

	slog.Info("MCP tool server starting", "instance_id", rt.InstanceID)
	if err := srv.ServeStdio(); err != nil {
		slog.Error("MCP server stopped", "error", err)
	}
}
