package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/retry"
	"github.com/redis/go-redis/v9"
)

var connectPolicy = retry.Policy{
	Name:             "redis connect",
	MaxAttempts:      5,
	InitialBackoff:   200 * time.Millisecond,
	MaxBackoff:       2 * time.Second,
	RateLimitBackoff: 5 * time.Second,
}

// authErrorMarkers are reply prefixes and fragments that no amount of
// retrying will fix.
var authErrorMarkers = []string{
	"NOAUTH",
	"WRONGPASS",
	"NOPERM",
	"invalid password",
	"invalid username-password",
	"without any password configured",
}

// classifyConnectError stops on credential and addressing errors, backs off
// longer while the circuit breaker is open and retries everything else.
func classifyConnectError(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.After
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return retry.Stop
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return retry.Stop
	}

	msg := err.Error()
	for _, marker := range authErrorMarkers {
		if strings.Contains(msg, marker) {
			return retry.Stop
		}
	}
	return retry.Retry
}

// Client wraps a go-redis client with metrics and circuit breaker hooks.
type Client struct {
	rdb     *redis.Client
	breaker *CircuitBreakerHook
}

// NewClient parses redisURL, installs hooks and waits until Redis answers a
// PING. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	breaker := NewCircuitBreakerHook(m)
	rdb.AddHook(NewMetricsHook(m))
	rdb.AddHook(breaker)

	ping := func() error { return rdb.Ping(ctx).Err() }
	if err := retry.DoVoid(ctx, connectPolicy, classifyConnectError, ping); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, breaker: breaker}, nil
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
