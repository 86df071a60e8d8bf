package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
	"golang.org/x/time/rate"
)

const (
	greetingMessage = "Hello! The server is connected"
	leaveTimeout    = 2 * time.Second
)

// Options tune a Handler.
type Options struct {
	// AckDelivery publishes a "delivered" reply as soon as a request_reply
	// broadcast has been queued for the peer.
	AckDelivery bool
	// InboundRate limits frames per second read from the peer. Zero disables the limit.
	InboundRate  rate.Limit
	InboundBurst int
	// SendBuffer bounds the outbound queue.
	SendBuffer int
}

// Handler bridges one peer connection to the group registry. It is a
// domain.Member of the broadcast group for as long as Serve runs.
type Handler struct {
	name      string
	transport Transport
	registry  domain.GroupRegistry
	clock     clockwork.Clock
	opts      Options
	metrics   *metrics.WebSocketMetrics
	limiter   *rate.Limiter
	writer    *writer
	served    chan struct{}
}

var _ domain.Member = (*Handler)(nil)

type inboundFunc func(h *Handler, ctx context.Context, in domain.Inbound)

// dispatch routes classified peer frames. Kinds without an entry are ignored.
var dispatch = map[domain.InboundKind]inboundFunc{
	domain.InboundReply:     (*Handler).handleReply,
	domain.InboundBroadcast: (*Handler).handleBroadcast,
	domain.InboundEcho:      (*Handler).handleEcho,
}

// NewHandler creates a handler for transport and starts its writer. m may be nil.
func NewHandler(transport Transport, registry domain.GroupRegistry, clock clockwork.Clock, opts Options, m *metrics.WebSocketMetrics) *Handler {
	limit := opts.InboundRate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := opts.InboundBurst
	if burst <= 0 {
		burst = 1
	}

	return &Handler{
		name:      "relay." + uuid.NewString(),
		transport: transport,
		registry:  registry,
		clock:     clock,
		opts:      opts,
		metrics:   m,
		limiter:   rate.NewLimiter(limit, burst),
		writer:    newWriter(transport, clock, opts.SendBuffer, m),
		served:    make(chan struct{}),
	}
}

// ChannelName is the handler's unique identity in groups and replies.
func (h *Handler) ChannelName() string { return h.name }

// Deliver renders env for the peer and queues it. A full queue disconnects
// the peer; the envelope is dropped.
func (h *Handler) Deliver(env domain.Envelope) bool {
	frame, ok := renderOutbound(env)
	if !ok {
		slog.Debug("Ignoring undeliverable group event", "channel_name", h.name, "type", env.Type)
		return true
	}

	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to encode outbound frame", "channel_name", h.name, "error", err)
		return false
	}

	if !h.writer.enqueue(data) {
		if h.writer.stopped() {
			return false
		}
		if h.metrics != nil {
			h.metrics.SlowDisconnects.Inc()
		}
		slog.Warn("Send queue full, disconnecting peer", "channel_name", h.name)
		go h.writer.stop("send queue full")
		return false
	}

	if h.opts.AckDelivery && isReplySeeking(env) {
		h.acknowledge(env)
	}
	return true
}

// Serve joins the broadcast group, greets the peer and processes inbound
// frames until the peer disconnects or ctx is cancelled. Cleanup (leave the
// broadcast group, stop the writer, close the transport) always runs.
func (h *Handler) Serve(ctx context.Context) error {
	defer close(h.served)

	if err := h.registry.Join(ctx, domain.BroadcastGroup, h); err != nil {
		h.writer.stop("server unavailable")
		return fmt.Errorf("join %s: %w", domain.BroadcastGroup, err)
	}
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	slog.InfoContext(ctx, "Peer connected", "channel_name", h.name)
	defer h.disconnect(ctx)

	h.sendGreeting()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			h.writer.stop("server shutting down")
		case <-stopWatch:
		}
	}()

	for {
		data, err := h.transport.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		h.handleFrame(ctx, data)
	}
}

// Done is closed once Serve has returned.
func (h *Handler) Done() <-chan struct{} { return h.served }

func (h *Handler) disconnect(ctx context.Context) {
	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancel()
	if err := h.registry.Leave(leaveCtx, domain.BroadcastGroup, h); err != nil {
		slog.ErrorContext(ctx, "Failed to leave broadcast group", "channel_name", h.name, "error", err)
	}

	h.writer.stop("")
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	slog.InfoContext(ctx, "Peer disconnected", "channel_name", h.name)
}

func (h *Handler) sendGreeting() {
	data, err := json.Marshal(domain.Envelope{Type: domain.TypeGreeting, Message: greetingMessage})
	if err != nil {
		return
	}
	h.writer.enqueue(data)
}

func (h *Handler) handleFrame(ctx context.Context, data []byte) {
	if h.metrics != nil {
		h.metrics.FramesReceived.Inc()
	}
	h.writer.recordActivity()

	if !h.limiter.Allow() {
		if h.metrics != nil {
			h.metrics.RateLimitedFrames.Inc()
		}
		slog.WarnContext(ctx, "Inbound frame rate exceeded, dropping frame", "channel_name", h.name)
		return
	}

	env, err := domain.DecodeFrame(data)
	if err != nil {
		if h.metrics != nil {
			h.metrics.MalformedFrames.Inc()
		}
		slog.WarnContext(ctx, "Dropping malformed frame", "channel_name", h.name, "error", err)
		return
	}

	in := domain.Classify(env)
	fn, ok := dispatch[in.Kind]
	if !ok {
		slog.DebugContext(ctx, "Ignoring frame without handler", "channel_name", h.name, "type", env.Type, "command", env.Command)
		return
	}
	fn(h, ctx, in)
}

// handleReply routes a peer reply to the correlation group of its request.
func (h *Handler) handleReply(ctx context.Context, in domain.Inbound) {
	messageID := in.Envelope.MessageID
	group := domain.ReplyChannel(in.ReplyKind, messageID)
	reply := buildReply(h.name, in)
	ctx = correlation.WithMessageID(ctx, messageID)

	if err := h.registry.Publish(ctx, group, domain.NewReplyEnvelope(in.ReplyKind, messageID, reply)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish reply", "channel_name", h.name, "reply_channel", group, "error", err)
		return
	}
	slog.DebugContext(ctx, "Reply routed", "channel_name", h.name, "reply_channel", group, "status", reply.Status)
}

// handleBroadcast republishes a peer message to every connection.
func (h *Handler) handleBroadcast(ctx context.Context, in domain.Inbound) {
	env := domain.Envelope{
		Type:    domain.TypeBroadcastMessage,
		Message: in.Envelope.Message,
		Extra:   in.Envelope.Extra,
	}
	if err := h.registry.Publish(ctx, domain.BroadcastGroup, env); err != nil {
		slog.ErrorContext(ctx, "Failed to publish broadcast", "channel_name", h.name, "error", err)
	}
}

func (h *Handler) handleEcho(ctx context.Context, in domain.Inbound) {
	slog.DebugContext(ctx, "Suppressing echoed frame", "channel_name", h.name, "sender", in.Envelope.Sender)
}

// acknowledge reports immediate delivery of a reply-seeking broadcast.
func (h *Handler) acknowledge(env domain.Envelope) {
	ack := domain.NewReplyEnvelope(domain.KindGeneric, env.MessageID, domain.Reply{
		ChannelName: h.name,
		Status:      domain.StatusDelivered,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := h.registry.Publish(ctx, env.ReplyChannel, ack); err != nil {
			slog.Error("Failed to publish delivery ack", "channel_name", h.name, "error", err)
		}
	}()
}
