package connection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingingPipe struct {
	*pipeTransport
	pings chan struct{}
}

func (p *pingingPipe) Ping() error {
	p.pings <- struct{}{}
	return nil
}

func TestWriter_IdleTimeout(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	pipe := newPipeTransport(4)
	w := newWriter(pipe, fakeClock, 4, nil)
	t.Cleanup(func() { w.stop("") })

	assert.False(t, w.checkIdleTimeout())

	fakeClock.Advance(idleWarningTime)
	assert.False(t, w.checkIdleTimeout(), "should not disconnect at warning threshold")

	var warning map[string]any
	require.NoError(t, json.Unmarshal(<-pipe.outbound, &warning))
	assert.Equal(t, "warning", warning["type"])

	w.activityMutex.Lock()
	warningSent := w.warningSent
	w.activityMutex.Unlock()
	assert.True(t, warningSent)

	fakeClock.Advance(time.Minute + 10*time.Second)
	assert.True(t, w.checkIdleTimeout(), "connection should be dropped after idle timeout")
}

func TestWriter_ActivityResetsIdleTimer(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	pipe := newPipeTransport(4)
	w := newWriter(pipe, fakeClock, 4, nil)
	t.Cleanup(func() { w.stop("") })

	fakeClock.Advance(idleWarningTime + 30*time.Second)
	w.recordActivity()
	fakeClock.Advance(idleWarningTime)

	assert.False(t, w.checkIdleTimeout())
}

func TestWriter_PingsOnInterval(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	pipe := &pingingPipe{pipeTransport: newPipeTransport(4), pings: make(chan struct{}, 1)}
	w := newWriter(pipe, fakeClock, 4, nil)
	t.Cleanup(func() { w.stop("") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	fakeClock.Advance(pingInterval)

	select {
	case <-pipe.pings:
	case <-time.After(time.Second):
		t.Fatal("no ping after interval")
	}
}

func TestWriter_StopRefusesFurtherFrames(t *testing.T) {
	pipe := newPipeTransport(4)
	w := newWriter(pipe, clockwork.NewRealClock(), 4, nil)

	require.True(t, w.enqueue([]byte(`{"n":1}`)))
	assert.JSONEq(t, `{"n":1}`, string(<-pipe.outbound))

	w.stop("done")
	w.stop("twice")

	assert.False(t, w.enqueue([]byte(`{"n":2}`)))
	assert.Equal(t, "done", pipe.closeReason())
}
