package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/groups"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

const cleanupTimeout = 2 * time.Second

// Request describes one reply-seeking broadcast.
type Request struct {
	Message         string
	Kind            domain.ReplyKind
	Timeout         time.Duration
	Path            string
	FolderStructure map[string]any
	// StopAfter ends the wait once this many replies arrived. Zero waits for the full timeout.
	StopAfter int
}

// Result is what a round collected. Replies is in arrival order and may be
// empty; whether that is a failure is up to the caller.
type Result struct {
	MessageID    string         `json:"message_id"`
	ReplyChannel string         `json:"reply_channel"`
	Replies      []domain.Reply `json:"replies"`
}

// Coordinator issues reply-seeking broadcasts against a group registry.
type Coordinator struct {
	registry       domain.GroupRegistry
	clock          clockwork.Clock
	broadcastGroup string
	mailboxSize    int
	metrics        *metrics.CoordinatorMetrics
	newID          func() string
}

// NewCoordinator creates a coordinator publishing requests to domain.BroadcastGroup.
// mailboxSize bounds the replies buffered between receives. m may be nil.
func NewCoordinator(registry domain.GroupRegistry, clock clockwork.Clock, mailboxSize int, m *metrics.CoordinatorMetrics) *Coordinator {
	return &Coordinator{
		registry:       registry,
		clock:          clock,
		broadcastGroup: domain.BroadcastGroup,
		mailboxSize:    mailboxSize,
		metrics:        m,
		newID:          uuid.NewString,
	}
}

// BroadcastAndCollect publishes req to the broadcast group and gathers the
// replies routed back to its correlation group.
//
// On context cancellation the replies collected so far are returned along
// with the context error.
func (c *Coordinator) BroadcastAndCollect(ctx context.Context, req Request) (*Result, error) {
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", req.Timeout)
	}
	if req.Kind == "" {
		req.Kind = domain.KindGeneric
	}

	messageID := c.newID()
	replyChannel := domain.ReplyChannel(req.Kind, messageID)
	ctx = correlation.WithMessageID(ctx, messageID)

	mailbox := groups.NewMailbox(replyChannel, c.mailboxSize)
	if err := c.registry.Join(ctx, replyChannel, mailbox); err != nil {
		return nil, fmt.Errorf("join reply group %s: %w", replyChannel, err)
	}

	start := c.clock.Now()
	deadline := start.Add(req.Timeout)
	c.trackStart(req.Kind)
	defer c.release(ctx, replyChannel, mailbox, req.Kind, start)

	result := &Result{
		MessageID:    messageID,
		ReplyChannel: replyChannel,
		Replies:      []domain.Reply{},
	}

	if err := c.registry.Publish(ctx, c.broadcastGroup, requestEnvelope(req, messageID, replyChannel)); err != nil {
		return nil, fmt.Errorf("publish request %s: %w", messageID, err)
	}
	slog.InfoContext(ctx, "Request broadcast, awaiting replies",
		"reply_kind", req.Kind,
		"reply_channel", replyChannel,
		"timeout", req.Timeout,
	)

	wantType := domain.ReplyType(req.Kind)
	for {
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			break
		}

		env, err := c.registry.Receive(ctx, replyChannel, remaining)
		if errors.Is(err, domain.ErrReceiveTimeout) {
			continue
		}
		if err != nil {
			return result, err
		}

		if !c.clock.Now().Before(deadline) {
			slog.DebugContext(ctx, "Discarding reply received at deadline", "channel_name", env.ChannelName)
			break
		}
		if env.Type != wantType || env.MessageID != messageID {
			slog.DebugContext(ctx, "Ignoring unexpected envelope on reply group", "type", env.Type, "envelope_message_id", env.MessageID)
			continue
		}

		reply := replyFromEnvelope(env)
		result.Replies = append(result.Replies, reply)
		slog.DebugContext(ctx, "Reply collected", "channel_name", reply.ChannelName, "status", reply.Status, "collected", len(result.Replies))

		if req.StopAfter > 0 && len(result.Replies) >= req.StopAfter {
			break
		}
	}

	if c.metrics != nil {
		c.metrics.Replies.WithLabelValues(string(req.Kind)).Add(float64(len(result.Replies)))
		if len(result.Replies) == 0 {
			c.metrics.EmptyResults.WithLabelValues(string(req.Kind)).Inc()
		}
	}
	slog.InfoContext(ctx, "Reply collection finished", "reply_kind", req.Kind, "replies", len(result.Replies))
	return result, nil
}

func (c *Coordinator) trackStart(kind domain.ReplyKind) {
	if c.metrics == nil {
		return
	}
	c.metrics.Requests.WithLabelValues(string(kind)).Inc()
	c.metrics.InFlight.Inc()
}

// release leaves the reply group even when ctx is already cancelled.
func (c *Coordinator) release(ctx context.Context, replyChannel string, mailbox *groups.Mailbox, kind domain.ReplyKind, start time.Time) {
	mailbox.Close()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.registry.Leave(cleanupCtx, replyChannel, mailbox); err != nil {
		slog.ErrorContext(ctx, "Failed to leave reply group", "reply_channel", replyChannel, "error", err)
	}

	if c.metrics != nil {
		c.metrics.InFlight.Dec()
		c.metrics.Duration.WithLabelValues(string(kind)).Observe(c.clock.Since(start).Seconds())
	}
}

func requestEnvelope(req Request, messageID, replyChannel string) domain.Envelope {
	env := domain.Envelope{
		Type:         domain.RequestType(req.Kind),
		Message:      req.Message,
		MessageID:    messageID,
		ReplyChannel: replyChannel,
	}

	switch req.Kind {
	case domain.KindFolder:
		env.Path = req.Path
	case domain.KindUpdate:
		env.Path = req.Path
		env.FolderStructure = req.FolderStructure
	default:
		env.Command = domain.CommandRequestReply
	}
	return env
}

func replyFromEnvelope(env domain.Envelope) domain.Reply {
	if env.Content != nil {
		return *env.Content
	}
	return domain.Reply{
		ChannelName:     env.ChannelName,
		Status:          env.Status,
		ActualMessage:   env.ActualMessage,
		Message:         env.Message,
		Path:            env.Path,
		FolderStructure: env.FolderStructure,
	}
}
