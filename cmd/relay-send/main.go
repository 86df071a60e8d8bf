package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/app"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
)

// relay-send publishes one message into a running relay through Redis,
// optionally waiting for replies, and prints the result as JSON.
func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

type options struct {
	message   string
	kind      string
	path      string
	structure string
	timeout   time.Duration
	stopAfter int
	verbose   bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("relay-send", flag.ContinueOnError)
	fs.StringVar(&opts.message, "message", "", "Message text to broadcast")
	fs.StringVar(&opts.kind, "kind", "", "Reply kind to wait for: generic, folder or update (empty = fire and forget)")
	fs.StringVar(&opts.path, "path", "", "Folder path for folder and update requests")
	fs.StringVar(&opts.structure, "structure", "", "Folder structure JSON object for update requests")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Reply wait (defaults to REPLY_TIMEOUT or FOLDER_TIMEOUT)")
	fs.IntVar(&opts.stopAfter, "stop-after", 0, "Return once this many replies arrived")
	fs.BoolVar(&opts.verbose, "verbose", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run returns the process exit code: 2 for bad usage, 1 for failures.
// Returning instead of exiting lets the runtime close its Redis connection.
func run(args []string, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if cfg.RedisURL == "" {
		log.Print("REDIS_URL is required to reach a running relay")
		return 1
	}

	logLevel := cfg.LogLevel
	if opts.verbose {
		logLevel = "debug"
	}
	logging.InitLogger(os.Stderr, logLevel, cfg.LogFormat)

	req, err := buildRequest(cfg, opts.message, opts.kind, opts.path, opts.structure, opts.timeout, opts.stopAfter)
	if err != nil {
		slog.Error("Invalid arguments", "error", err)
		return 2
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := app.New(setupCtx, cfg, clockwork.NewRealClock(), "send")
	cancel()
	if err != nil {
		slog.Error("Failed to connect", "error", err)
		return 1
	}
	defer rt.Close()

	// The round is bounded by req.Timeout, not by the setup deadline.
	if err := send(context.Background(), rt, opts.kind == "", req, stdout); err != nil {
		slog.Error("Send failed", "error", err)
		return 1
	}
	return 0
}

// send publishes req through rt and writes the outcome as indented JSON.
// fireAndForget skips waiting for replies.
func send(ctx context.Context, rt *app.Runtime, fireAndForget bool, req coordination.Request, w io.Writer) error {
	var out any
	if fireAndForget {
		env := domain.Envelope{Type: domain.TypeBroadcastMessage, Message: req.Message}
		if err := rt.Registry.Publish(ctx, domain.BroadcastGroup, env); err != nil {
			return fmt.Errorf("broadcast failed: %w", err)
		}
		out = map[string]string{"status": "sent"}
	} else {
		result, err := rt.Coordinator.BroadcastAndCollect(ctx, req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		slog.DebugContext(ctx, "Collected replies", "message_id", result.MessageID, "replies", len(result.Replies))
		out = result
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func buildRequest(cfg *config.Config, message, kindName, path, structure string, timeout time.Duration, stopAfter int) (coordination.Request, error) {
	kind, err := domain.ParseReplyKind(kindName)
	if err != nil {
		return coordination.Request{}, err
	}
	if kind == domain.KindGeneric && message == "" {
		return coordination.Request{}, fmt.Errorf("-message is required")
	}

	req := coordination.Request{
		Message:   message,
		Kind:      kind,
		Timeout:   timeout,
		Path:      path,
		StopAfter: stopAfter,
	}

	if req.Timeout <= 0 {
		req.Timeout = cfg.ReplyTimeout
		if kind != domain.KindGeneric {
			req.Timeout = cfg.FolderTimeout
		}
	}
	if kind != domain.KindGeneric && req.Path == "" {
		req.Path = cfg.FolderPath
	}

	if kind == domain.KindUpdate {
		if structure == "" {
			return coordination.Request{}, fmt.Errorf("-structure is required for update requests")
		}
		if err := json.Unmarshal([]byte(structure), &req.FolderStructure); err != nil {
			return coordination.Request{}, fmt.Errorf("-structure is not a JSON object: %w", err)
		}
	}

	return req, nil
}
