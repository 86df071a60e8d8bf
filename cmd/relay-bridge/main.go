package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/app"
	"github.com/pscheid92/chatrelay/internal/connection"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
	"golang.org/x/time/rate"
)

// relay-bridge attaches one peer speaking newline-delimited JSON on
// stdin/stdout to the relay, exactly as if it had connected over /ws.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	clock := clockwork.NewRealClock()

	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := app.New(setupCtx, cfg, clock, "bridge")
	cancel()
	if err != nil {
		slog.Error("Failed to set up relay runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.Start(ctx)

	transport := connection.NewStreamTransport(os.Stdin, os.Stdout, os.Stdin)
	handler := connection.NewHandler(transport, rt.Registry, clock, connection.Options{
		AckDelivery:  cfg.AckDelivery,
		InboundRate:  rate.Limit(cfg.InboundRate),
		InboundBurst: cfg.InboundBurst,
		SendBuffer:   cfg.MailboxSize,
	}, nil)

	if err := handler.Serve(ctx); err != nil {
		slog.Error("Bridge stopped", "error", err)
	}
}
