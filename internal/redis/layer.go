package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/groups"
	"github.com/redis/go-redis/v9"
)

const fanOutTimeout = 2 * time.Second

// Layer is a domain.GroupRegistry spanning every process connected to the
// same Redis. Members are registered in the embedded local registry; every
// publish goes through Redis and each process fans incoming messages out to
// its own members. Groups without members anywhere are silently skipped.
type Layer struct {
	rdb     *redis.Client
	local   *groups.Registry
	prefix  string
	metrics *metrics.RedisMetrics

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

var _ domain.GroupRegistry = (*Layer)(nil)

// NewLayer subscribes to all groups under prefix and starts the fan-out
// loop. It returns once the subscription is confirmed, so publishes made
// afterwards by any process are seen. m may be nil.
func NewLayer(ctx context.Context, client *Client, local *groups.Registry, prefix string, m *metrics.RedisMetrics) (*Layer, error) {
	l := &Layer{
		rdb:     client.rdb,
		local:   local,
		prefix:  prefix,
		metrics: m,
	}

	l.pubsub = l.rdb.PSubscribe(ctx, l.channel("*"))
	if _, err := l.pubsub.Receive(ctx); err != nil {
		_ = l.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", l.channel("*"), err)
	}

	l.wg.Add(1)
	go l.run()

	slog.Info("Redis channel layer started", "pattern", l.channel("*"))
	return l, nil
}

func (l *Layer) Join(ctx context.Context, group string, member domain.Member) error {
	return l.local.Join(ctx, group, member)
}

func (l *Layer) Leave(ctx context.Context, group string, member domain.Member) error {
	return l.local.Leave(ctx, group, member)
}

// Publish sends env to group in every connected process.
func (l *Layer) Publish(ctx context.Context, group string, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope for %s: %w", group, err)
	}

	receivers, err := l.rdb.Publish(ctx, l.channel(group), data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", group, err)
	}
	slog.DebugContext(ctx, "Envelope published", "group", group, "type", env.Type, "processes", receivers)
	return nil
}

func (l *Layer) Receive(ctx context.Context, group string, timeout time.Duration) (domain.Envelope, error) {
	return l.local.Receive(ctx, group, timeout)
}

// Close stops the fan-out loop. Local memberships are left to the owner of
// the local registry.
func (l *Layer) Close() error {
	err := l.pubsub.Close()
	l.wg.Wait()
	return err
}

func (l *Layer) run() {
	defer l.wg.Done()

	for msg := range l.pubsub.Channel() {
		group, ok := strings.CutPrefix(msg.Channel, l.channel(""))
		if !ok {
			continue
		}
		if l.metrics != nil {
			l.metrics.MessagesReceived.Inc()
		}

		var env domain.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			if l.metrics != nil {
				l.metrics.DecodeErrors.Inc()
			}
			slog.Warn("Dropping undecodable channel layer message", "group", group, "error", err)
			continue
		}

		if l.local.MemberCount(group) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), fanOutTimeout)
		_ = l.local.Publish(ctx, group, env)
		cancel()
	}
}

func (l *Layer) channel(group string) string {
	return l.prefix + ":group:" + group
}
