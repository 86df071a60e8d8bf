package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const staleAfter = 60 * time.Second

// Presence tracks running relay processes in a Redis hash. Each process
// writes a heartbeat; entries older than a minute are treated as gone.
type Presence struct {
	rdb       *redis.Client
	clock     clockwork.Clock
	key       string
	info      InstanceInfo
	heartbeat time.Duration
}

// InstanceInfo describes one relay process.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	Role       string `json:"role"`
	Version    string `json:"version"`
	Timestamp  int64  `json:"timestamp"`
}

// NewPresence creates a presence tracker for one process. role names the
// binary ("server", "tools", "bridge").
func NewPresence(client *Client, clock clockwork.Clock, prefix, instanceID, role, version string, heartbeat time.Duration) *Presence {
	return &Presence{
		rdb:       client.rdb,
		clock:     clock,
		key:       prefix + ":instances",
		info:      InstanceInfo{InstanceID: instanceID, Role: role, Version: version},
		heartbeat: heartbeat,
	}
}

// Start registers immediately, then refreshes on every heartbeat. Blocks
// until ctx is cancelled, then unregisters.
func (p *Presence) Start(ctx context.Context) {
	p.register(ctx)

	ticker := p.clock.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			p.register(ctx)
		case <-ctx.Done():
			p.unregister(context.WithoutCancel(ctx))
			return
		}
	}
}

func (p *Presence) register(ctx context.Context) {
	info := p.info
	info.Timestamp = p.clock.Now().Unix()

	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := p.rdb.HSet(ctx, p.key, info.InstanceID, data).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to write presence heartbeat", "instance_id", info.InstanceID, "error", err)
	}
}

func (p *Presence) unregister(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.rdb.HDel(ctx, p.key, p.info.InstanceID).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to remove presence entry", "instance_id", p.info.InstanceID, "error", err)
	}
}

// Active returns the processes with a heartbeat within the last minute,
// sorted by instance id.
func (p *Presence) Active(ctx context.Context) ([]InstanceInfo, error) {
	entries, err := p.rdb.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	now := p.clock.Now().Unix()
	active := []InstanceInfo{}
	for _, data := range entries {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if now-info.Timestamp < int64(staleAfter.Seconds()) {
			active = append(active, info)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].InstanceID < active[j].InstanceID })
	return active, nil
}
