package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/app"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	cfg := &config.Config{ReplyTimeout: 10 * time.Second, FolderTimeout: 15 * time.Second, FolderPath: "app/mcp"}

	t.Run("fire and forget defaults to generic", func(t *testing.T) {
		req, err := buildRequest(cfg, "hi", "", "", "", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.KindGeneric, req.Kind)
		assert.Equal(t, 10*time.Second, req.Timeout)
	})

	t.Run("folder fills path and timeout", func(t *testing.T) {
		req, err := buildRequest(cfg, "", "folder", "", "", 0, 2)
		require.NoError(t, err)
		assert.Equal(t, "app/mcp", req.Path)
		assert.Equal(t, 15*time.Second, req.Timeout)
		assert.Equal(t, 2, req.StopAfter)
	})

	t.Run("update parses structure", func(t *testing.T) {
		req, err := buildRequest(cfg, "", "update", "src", `{"main.go":"file"}`, time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"main.go": "file"}, req.FolderStructure)
		assert.Equal(t, time.Second, req.Timeout)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := buildRequest(cfg, "", "generic", "", "", 0, 0)
		assert.Error(t, err)
		_, err = buildRequest(cfg, "x", "bogus", "", "", 0, 0)
		assert.ErrorIs(t, err, domain.ErrUnknownReplyKind)
		_, err = buildRequest(cfg, "", "update", "", "", 0, 0)
		assert.Error(t, err)
		_, err = buildRequest(cfg, "", "update", "", "[1,2]", 0, 0)
		assert.Error(t, err)
	})
}

// answeringPeer replies to every reply-seeking broadcast it sees.
type answeringPeer struct {
	registry domain.GroupRegistry
	seen     chan domain.Envelope
}

func (p *answeringPeer) ChannelName() string { return "relay.peer" }

func (p *answeringPeer) Deliver(env domain.Envelope) bool {
	p.seen <- env
	if env.ReplyChannel != "" {
		reply := domain.Reply{ChannelName: p.ChannelName(), Status: domain.StatusResponded, ActualMessage: "pong"}
		go func() {
			_ = p.registry.Publish(context.Background(), env.ReplyChannel,
				domain.NewReplyEnvelope(domain.KindGeneric, env.MessageID, reply))
		}()
	}
	return true
}

func newInProcessRuntime(t *testing.T) (*app.Runtime, *answeringPeer) {
	t.Helper()
	cfg := &config.Config{
		ChannelPrefix:     "chatrelay",
		MailboxSize:       8,
		ReplyTimeout:      time.Second,
		FolderTimeout:     time.Second,
		PresenceHeartbeat: time.Second,
	}
	rt, err := app.New(context.Background(), cfg, clockwork.NewRealClock(), "send")
	require.NoError(t, err)

	peer := &answeringPeer{registry: rt.Registry, seen: make(chan domain.Envelope, 4)}
	require.NoError(t, rt.Registry.Join(context.Background(), domain.BroadcastGroup, peer))
	return rt, peer
}

func TestSend_FireAndForget(t *testing.T) {
	rt, peer := newInProcessRuntime(t)
	defer rt.Close()

	var out bytes.Buffer
	err := send(context.Background(), rt, true, coordination.Request{Message: "deploy finished"}, &out)

	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"sent"}`, out.String())
	env := <-peer.seen
	assert.Equal(t, "deploy finished", env.Message)
	assert.Empty(t, env.ReplyChannel)
}

func TestSend_CollectsReplies(t *testing.T) {
	rt, _ := newInProcessRuntime(t)
	defer rt.Close()

	var out bytes.Buffer
	err := send(context.Background(), rt, false, coordination.Request{
		Message:   "ping",
		Kind:      domain.KindGeneric,
		Timeout:   5 * time.Second,
		StopAfter: 1,
	}, &out)
	require.NoError(t, err)

	var result coordination.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Replies, 1)
	assert.Equal(t, "pong", result.Replies[0].ActualMessage)
}

func TestSend_ReturnsErrorInsteadOfExiting(t *testing.T) {
	rt, _ := newInProcessRuntime(t)
	rt.Close()

	var out bytes.Buffer
	err := send(context.Background(), rt, false, coordination.Request{Message: "too late", Kind: domain.KindGeneric, Timeout: time.Second}, &out)

	require.ErrorIs(t, err, domain.ErrRegistryClosed)
	assert.Contains(t, err.Error(), "request failed")
	assert.Empty(t, out.String())
}

func TestRun_ExitCodes(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"-no-such-flag"}, &out))
	assert.Equal(t, 1, run([]string{"-message", "hi"}, &out))
	assert.Empty(t, out.String())
}
