package groups

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *metrics.RegistryMetrics) {
	t.Helper()
	m := metrics.NewRegistryMetrics(prometheus.NewRegistry())
	r := NewRegistry(clockwork.NewRealClock(), m)
	t.Cleanup(r.Close)
	return r, m
}

func envelope(msg string) domain.Envelope {
	return domain.Envelope{Type: domain.TypeBroadcastMessage, Message: msg}
}

func drain(t *testing.T, m *Mailbox) []string {
	t.Helper()
	var got []string
	for {
		select {
		case env := <-m.C():
			got = append(got, env.Message)
		default:
			return got
		}
	}
}

func TestRegistry_PublishPreservesOrderPerMember(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	a := NewMailbox("a", 16)
	b := NewMailbox("b", 16)
	require.NoError(t, r.Join(ctx, "g", a))
	require.NoError(t, r.Join(ctx, "g", b))

	for i := range 5 {
		require.NoError(t, r.Publish(ctx, "g", envelope(fmt.Sprint(i))))
	}

	want := []string{"0", "1", "2", "3", "4"}
	assert.Equal(t, want, drain(t, a))
	assert.Equal(t, want, drain(t, b))
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r, m := newTestRegistry(t)
	ctx := context.Background()
	a := NewMailbox("a", 4)

	require.NoError(t, r.Join(ctx, "g", a))
	require.NoError(t, r.Join(ctx, "g", a))
	require.NoError(t, r.Publish(ctx, "g", envelope("once")))

	assert.Equal(t, 1, r.MemberCount("g"))
	assert.Equal(t, []string{"once"}, drain(t, a))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Members.WithLabelValues("other")))
}

func TestRegistry_LeaveAbsentMemberIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Leave(ctx, "missing", NewMailbox("a", 1)))

	require.NoError(t, r.Join(ctx, "g", NewMailbox("a", 1)))
	require.NoError(t, r.Leave(ctx, "g", NewMailbox("b", 1)))
	assert.Equal(t, 1, r.MemberCount("g"))
}

func TestRegistry_LeaveDropsEmptyGroup(t *testing.T) {
	r, m := newTestRegistry(t)
	ctx := context.Background()
	a := NewMailbox("a", 1)

	require.NoError(t, r.Join(ctx, domain.BroadcastGroup, a))
	assert.Equal(t, 1, r.GroupCount())

	require.NoError(t, r.Leave(ctx, domain.BroadcastGroup, a))
	assert.Equal(t, 0, r.GroupCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Groups))

	require.NoError(t, r.Publish(ctx, domain.BroadcastGroup, envelope("late")))
	assert.Empty(t, drain(t, a))
}

func TestRegistry_PublishWithoutMembersIsNoop(t *testing.T) {
	r, m := newTestRegistry(t)

	require.NoError(t, r.Publish(context.Background(), "generic_reply_gone", envelope("x")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoListener))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues("reply")))
}

func TestRegistry_FullMemberDoesNotAffectOthers(t *testing.T) {
	r, m := newTestRegistry(t)
	ctx := context.Background()
	slow := NewMailbox("slow", 1)
	fast := NewMailbox("fast", 8)
	require.NoError(t, r.Join(ctx, "g", slow))
	require.NoError(t, r.Join(ctx, "g", fast))

	for i := range 3 {
		require.NoError(t, r.Publish(ctx, "g", envelope(fmt.Sprint(i))))
	}

	assert.Equal(t, []string{"0"}, drain(t, slow))
	assert.Equal(t, []string{"0", "1", "2"}, drain(t, fast))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Delivered))
}

func TestRegistry_ReceiveReturnsQueuedEnvelope(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	box := NewMailbox("generic_reply_1", 4)
	require.NoError(t, r.Join(ctx, "generic_reply_1", box))
	require.NoError(t, r.Publish(ctx, "generic_reply_1", envelope("pong")))

	env, err := r.Receive(ctx, "generic_reply_1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", env.Message)
}

func TestRegistry_ReceiveTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock, nil)
	t.Cleanup(r.Close)
	ctx := context.Background()
	require.NoError(t, r.Join(ctx, "g", NewMailbox("g", 1)))

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Receive(ctx, "g", 5*time.Second)
		errCh <- err
	}()

	blockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(5 * time.Second)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrReceiveTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not time out")
	}
}

func TestRegistry_ReceivePrefersReplyQueuedAtDeadline(t *testing.T) {
	t.Run("queued while waiting", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		r := NewRegistry(clock, nil)
		t.Cleanup(r.Close)
		ctx := context.Background()
		require.NoError(t, r.Join(ctx, "generic_reply_1", NewMailbox("generic_reply_1", 1)))

		type outcome struct {
			env domain.Envelope
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			env, err := r.Receive(ctx, "generic_reply_1", 5*time.Second)
			done <- outcome{env, err}
		}()

		blockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
		require.NoError(t, r.Publish(ctx, "generic_reply_1", envelope("pong")))
		clock.Advance(5 * time.Second)

		select {
		case out := <-done:
			require.NoError(t, out.err)
			assert.Equal(t, "pong", out.env.Message)
		case <-time.After(2 * time.Second):
			t.Fatal("Receive did not return")
		}
	})

	t.Run("timer already expired", func(t *testing.T) {
		r := NewRegistry(clockwork.NewFakeClock(), nil)
		t.Cleanup(r.Close)
		ctx := context.Background()
		require.NoError(t, r.Join(ctx, "generic_reply_1", NewMailbox("generic_reply_1", 1)))

		for i := range 50 {
			require.NoError(t, r.Publish(ctx, "generic_reply_1", envelope("pong")))

			env, err := r.Receive(ctx, "generic_reply_1", 0)
			require.NoError(t, err, "attempt %d", i)
			assert.Equal(t, "pong", env.Message)
		}
	})
}

func TestRegistry_ReceiveHonoursContext(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "g", NewMailbox("g", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Receive(ctx, "g", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_ReceiveWithoutMailbox(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Receive(context.Background(), "nobody", time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrNoLocalMember)
}

func TestRegistry_ConcurrentJoinPublishLeave(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			box := NewMailbox(fmt.Sprintf("m%d", i), 64)
			_ = r.Join(ctx, "g", box)
			for j := range 10 {
				_ = r.Publish(ctx, "g", envelope(fmt.Sprint(j)))
			}
			_ = r.Leave(ctx, "g", box)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.MemberCount("g"))
	assert.Equal(t, 0, r.GroupCount())
}

func TestRegistry_CloseRefusesJoins(t *testing.T) {
	r := NewRegistry(clockwork.NewRealClock(), nil)
	ctx := context.Background()
	require.NoError(t, r.Join(ctx, "g", NewMailbox("a", 1)))

	r.Close()

	assert.Equal(t, 0, r.GroupCount())
	assert.ErrorIs(t, r.Join(ctx, "g", NewMailbox("b", 1)), domain.ErrRegistryClosed)
}
