package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/groups"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:            "development",
		Port:              "0",
		ChannelPrefix:     "chatrelay",
		PresenceHeartbeat: 15 * time.Second,
		ReplyTimeout:      10 * time.Second,
		FolderTimeout:     15 * time.Second,
		FolderPath:        "app/mcp",
		MailboxSize:       16,
		MaxConnections:    10,
		InboundRate:       100,
		InboundBurst:      100,
		APIRate:           100,
		APIBurst:          100,
	}
}

type testServerOption func(*config.Config, *Dependencies)

func newTestServer(t *testing.T, opts ...testServerOption) (*Server, *groups.Registry) {
	t.Helper()

	cfg := testConfig()
	registry := groups.NewRegistry(clockwork.NewRealClock(), nil)
	deps := Dependencies{
		Registry:    registry,
		Coordinator: &fakeCoordinator{},
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv := NewServer(cfg, deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		registry.Close()
	})
	return srv, registry
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(_ *config.Config, d *Dependencies) {
		d.HealthChecks = checks
	}
}

func withCoordinator(coord requester) testServerOption {
	return func(_ *config.Config, d *Dependencies) {
		d.Coordinator = coord
	}
}

func withInstances(instances instanceLister) testServerOption {
	return func(_ *config.Config, d *Dependencies) {
		d.Instances = instances
	}
}

func withHTTPMetrics(m *metrics.HTTPMetrics) testServerOption {
	return func(_ *config.Config, d *Dependencies) {
		d.HTTPMetrics = m
	}
}

func withConfig(fn func(*config.Config)) testServerOption {
	return func(cfg *config.Config, _ *Dependencies) {
		fn(cfg)
	}
}

type fakeCoordinator struct {
	mu       sync.Mutex
	requests []coordination.Request
	result   *coordination.Result
	err      error
}

func (f *fakeCoordinator) BroadcastAndCollect(_ context.Context, req coordination.Request) (*coordination.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &coordination.Result{MessageID: "m-1", ReplyChannel: domain.ReplyChannel(req.Kind, "m-1")}, nil
}

func (f *fakeCoordinator) last() coordination.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeInstances struct {
	instances []redis.InstanceInfo
	err       error
}

func (f *fakeInstances) Active(context.Context) ([]redis.InstanceInfo, error) {
	return f.instances, f.err
}

// recorder is a group member that keeps everything delivered to it.
type recorder struct {
	name string
	ch   chan domain.Envelope
}

func newRecorder(name string) *recorder {
	return &recorder{name: name, ch: make(chan domain.Envelope, 16)}
}

func (r *recorder) ChannelName() string { return r.name }

func (r *recorder) Deliver(env domain.Envelope) bool {
	select {
	case r.ch <- env:
		return true
	default:
		return false
	}
}
