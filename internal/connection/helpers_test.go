package connection

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/require"
)

// pipeTransport is an in-memory Transport driven by the test.
type pipeTransport struct {
	inbound   chan []byte
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	reason string
}

func newPipeTransport(outboundBuffer int) *pipeTransport {
	return &pipeTransport{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, outboundBuffer),
		closed:   make(chan struct{}),
	}
}

func (p *pipeTransport) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-p.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeTransport) WriteFrame(data []byte) error {
	select {
	case <-p.closed:
		return ErrTransportClosed
	case p.outbound <- data:
		return nil
	}
}

func (p *pipeTransport) Close(reason string) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.closed)
	})
	return nil
}

func (p *pipeTransport) closeReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *pipeTransport) send(t *testing.T, frame string) {
	t.Helper()
	select {
	case p.inbound <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("inbound frame not consumed")
	}
}

// next returns the next outbound frame as a generic JSON object.
func (p *pipeTransport) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-p.outbound:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no outbound frame")
		return nil
	}
}

func (p *pipeTransport) expectSilence(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case data := <-p.outbound:
		t.Fatalf("unexpected outbound frame: %s", data)
	case <-time.After(wait):
	}
}

// recorder is a group member that keeps everything delivered to it.
type recorder struct {
	name string
	mu   sync.Mutex
	envs []domain.Envelope
}

func (r *recorder) ChannelName() string { return r.name }

func (r *recorder) Deliver(env domain.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return true
}

func (r *recorder) received() []domain.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Envelope(nil), r.envs...)
}
