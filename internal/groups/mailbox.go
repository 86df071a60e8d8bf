package groups

import (
	"sync"

	"github.com/pscheid92/chatrelay/internal/domain"
)

const DefaultMailboxSize = 64

// Mailbox is a bounded FIFO member. Delivery never blocks: when the buffer
// is full or the mailbox is closed the envelope is refused.
type Mailbox struct {
	name      string
	ch        chan domain.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.Member = (*Mailbox)(nil)

func NewMailbox(name string, size int) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Mailbox{
		name: name,
		ch:   make(chan domain.Envelope, size),
		done: make(chan struct{}),
	}
}

func (m *Mailbox) ChannelName() string { return m.name }

func (m *Mailbox) Deliver(env domain.Envelope) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	select {
	case m.ch <- env:
		return true
	default:
		return false
	}
}

// C exposes the receive side for select-based waits.
func (m *Mailbox) C() <-chan domain.Envelope { return m.ch }

// Done is closed once the mailbox stops accepting envelopes.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

// Close stops further deliveries. Buffered envelopes stay readable.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Len returns the number of buffered envelopes.
func (m *Mailbox) Len() int { return len(m.ch) }
