package domain

import (
	"context"
	"time"
)

// Member is one subscriber of a group: a connection handler or a
// coordinator mailbox. Deliver must not block; it returns false when the
// envelope could not be queued.
type Member interface {
	ChannelName() string
	Deliver(env Envelope) bool
}

// GroupRegistry tracks group membership and fans envelopes out to members.
// Publishing to a group without members is a no-op.
type GroupRegistry interface {
	Join(ctx context.Context, group string, member Member) error
	Leave(ctx context.Context, group string, member Member) error
	Publish(ctx context.Context, group string, env Envelope) error
	Receive(ctx context.Context, group string, timeout time.Duration) (Envelope, error)
}
