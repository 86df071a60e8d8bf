package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/groups"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/pscheid92/chatrelay/internal/redis"
)

// Runtime holds the wired relay components of one process.
type Runtime struct {
	Config      *config.Config
	Clock       clockwork.Clock
	Role        string
	InstanceID  string
	Prometheus  *prometheus.Registry
	Registry    domain.GroupRegistry
	Coordinator *coordination.Coordinator

	// Redis and Presence are nil when the relay runs in-process only.
	Redis    *redis.Client
	Presence *redis.Presence

	local  *groups.Registry
	layer  *redis.Layer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the runtime for role ("server", "tools", "bridge", "send").
// The caller owns the result and must Close it.
func New(ctx context.Context, cfg *config.Config, clock clockwork.Clock, role string) (*Runtime, error) {
	rt := &Runtime{
		Config:     cfg,
		Clock:      clock,
		Role:       role,
		InstanceID: role + "-" + uuid.NewString()[:8],
	}
	reg := metrics.NewRegistry(rt.Version())
	local := groups.NewRegistry(clock, metrics.NewRegistryMetrics(reg))
	rt.Prometheus = reg
	rt.Registry = local
	rt.local = local

	if cfg.RedisURL != "" {
		if err := rt.connectRedis(ctx); err != nil {
			local.Close()
			return nil, err
		}
	} else {
		slog.Info("REDIS_URL not set, relaying within this process only")
	}

	rt.Coordinator = coordination.NewCoordinator(rt.Registry, clock, cfg.MailboxSize, metrics.NewCoordinatorMetrics(reg))
	return rt, nil
}

func (rt *Runtime) connectRedis(ctx context.Context) error {
	redisMetrics := metrics.NewRedisMetrics(rt.Prometheus)

	client, err := redis.NewClient(ctx, rt.Config.RedisURL, redisMetrics)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	layer, err := redis.NewLayer(ctx, client, rt.local, rt.Config.ChannelPrefix, redisMetrics)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to start channel layer: %w", err)
	}

	rt.Redis = client
	rt.layer = layer
	rt.Registry = layer
	rt.Presence = redis.NewPresence(client, rt.Clock, rt.Config.ChannelPrefix, rt.InstanceID, rt.Role,
		rt.Version().Short(), rt.Config.PresenceHeartbeat)
	return nil
}

// Version is the build information of this process tagged with its role and instance ID.
func (rt *Runtime) Version() version.Info {
	return version.ForInstance(rt.Role, rt.InstanceID)
}

// Start launches background work: the presence heartbeat when Redis is configured.
func (rt *Runtime) Start(ctx context.Context) {
	if rt.Presence == nil {
		return
	}

	ctx, rt.cancel = context.WithCancel(ctx)
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.Presence.Start(ctx)
	}()
}

// Ping reports whether the channel layer is reachable. It always succeeds in-process.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt.Redis == nil {
		return nil
	}
	return rt.Redis.Ping(ctx)
}

// Close stops background work and releases the registry and Redis connections.
func (rt *Runtime) Close() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()

	if rt.layer != nil {
		if err := rt.layer.Close(); err != nil {
			slog.Error("Failed to close channel layer", "error", err)
		}
	}
	rt.local.Close()
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			slog.Error("Failed to close Redis client", "error", err)
		}
	}
}
