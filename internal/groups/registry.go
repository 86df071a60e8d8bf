package groups

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
)

type memberSet map[string]domain.Member

// Registry is the in-process implementation of domain.GroupRegistry.
type Registry struct {
	mu      sync.RWMutex
	groups  map[string]memberSet
	closed  bool
	clock   clockwork.Clock
	metrics *metrics.RegistryMetrics
}

var _ domain.GroupRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(clock clockwork.Clock, m *metrics.RegistryMetrics) *Registry {
	return &Registry{
		groups:  make(map[string]memberSet),
		clock:   clock,
		metrics: m,
	}
}

// Join adds member to group. Joining twice is a no-op.
func (r *Registry) Join(_ context.Context, group string, member domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRegistryClosed
	}

	members, exists := r.groups[group]
	if !exists {
		members = make(memberSet)
		r.groups[group] = members
	}
	if _, already := members[member.ChannelName()]; already {
		return nil
	}
	members[member.ChannelName()] = member

	if r.metrics != nil {
		r.metrics.Groups.Set(float64(len(r.groups)))
		r.metrics.Members.WithLabelValues(groupClass(group)).Inc()
	}
	slog.Debug("Member joined group", "group", group, "member", member.ChannelName(), "members", len(members))
	return nil
}

// Leave removes member from group. Absent members are ignored. The group
// entry is dropped with its last member.
func (r *Registry) Leave(_ context.Context, group string, member domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.groups[group]
	if !exists {
		return nil
	}
	if _, present := members[member.ChannelName()]; !present {
		return nil
	}
	delete(members, member.ChannelName())
	if len(members) == 0 {
		delete(r.groups, group)
	}

	if r.metrics != nil {
		r.metrics.Groups.Set(float64(len(r.groups)))
		r.metrics.Members.WithLabelValues(groupClass(group)).Dec()
	}
	slog.Debug("Member left group", "group", group, "member", member.ChannelName(), "members", len(members))
	return nil
}

// Publish hands env to every current member of group. Each member queues
// independently; a member that refuses the envelope does not affect the
// others. A group without members is a silent no-op.
func (r *Registry) Publish(ctx context.Context, group string, env domain.Envelope) error {
	members := r.snapshot(group)

	if r.metrics != nil {
		r.metrics.Published.WithLabelValues(groupClass(group)).Inc()
	}
	if len(members) == 0 {
		if r.metrics != nil {
			r.metrics.NoListener.Inc()
		}
		slog.DebugContext(ctx, "Publish to group without members", "group", group, "type", env.Type)
		return nil
	}

	for _, member := range members {
		if member.Deliver(env) {
			if r.metrics != nil {
				r.metrics.Delivered.Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.Dropped.Inc()
		}
		slog.WarnContext(ctx, "Member refused envelope", "group", group, "member", member.ChannelName(), "type", env.Type)
	}
	return nil
}

// Receive waits up to timeout for the next envelope queued in the group's
// local mailbox. It is meant for single-member correlation groups owned by
// the caller.
func (r *Registry) Receive(ctx context.Context, group string, timeout time.Duration) (domain.Envelope, error) {
	mailbox, err := r.localMailbox(group)
	if err != nil {
		return domain.Envelope{}, err
	}

	timer := r.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-mailbox.C():
		return env, nil
	case <-timer.Chan():
		// An envelope queued just before the deadline still counts.
		select {
		case env := <-mailbox.C():
			return env, nil
		default:
			return domain.Envelope{}, domain.ErrReceiveTimeout
		}
	case <-ctx.Done():
		return domain.Envelope{}, fmt.Errorf("receive on %s: %w", group, ctx.Err())
	}
}

// Members returns the channel names currently in group.
func (r *Registry) Members(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups[group]))
	for name := range r.groups[group] {
		names = append(names, name)
	}
	return names
}

// MemberCount returns the number of members in group.
func (r *Registry) MemberCount(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// GroupCount returns the number of groups with at least one member.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Close drops all memberships and refuses further joins.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, members := range r.groups {
		total += len(members)
	}
	r.groups = make(map[string]memberSet)
	r.closed = true

	if r.metrics != nil {
		r.metrics.Groups.Set(0)
		r.metrics.Members.Reset()
	}
	slog.Info("Group registry closed", "dropped_memberships", total)
}

func (r *Registry) snapshot(group string) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[group]
	out := make([]domain.Member, 0, len(members))
	for _, member := range members {
		out = append(out, member)
	}
	return out
}

func (r *Registry) localMailbox(group string) (*Mailbox, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, member := range r.groups[group] {
		if mailbox, ok := member.(*Mailbox); ok {
			return mailbox, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNoLocalMember, group)
}

func groupClass(group string) string {
	switch {
	case strings.Contains(group, "_reply_"):
		return "reply"
	case group == domain.BroadcastGroup:
		return "broadcast"
	default:
		return "other"
	}
}
