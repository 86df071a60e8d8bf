package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/metrics"
)

const (
	pingInterval      = 30 * time.Second
	idleTimeout       = 5 * time.Minute
	idleWarningTime   = 4 * time.Minute
	defaultSendBuffer = 16
)

var idleWarning = []byte(`{"type":"warning","message":"Connection idle. Will disconnect if no activity within 1 minute."}`)

// writer owns all writes to a transport. Frames are queued on a bounded
// channel; pings and idle checks run on the same goroutine so the transport
// never sees concurrent writes.
type writer struct {
	transport Transport
	pinger    Pinger
	clock     clockwork.Clock
	metrics   *metrics.WebSocketMetrics

	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	activityMutex sync.Mutex
	lastActivity  time.Time
	warningSent   bool
}

func newWriter(transport Transport, clock clockwork.Clock, buffer int, m *metrics.WebSocketMetrics) *writer {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	w := &writer{
		transport:    transport,
		clock:        clock,
		metrics:      m,
		sendChannel:  make(chan []byte, buffer),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	if p, ok := transport.(Pinger); ok {
		w.pinger = p
	}
	if n, ok := transport.(activityNotifier); ok {
		n.OnActivity(w.recordActivity)
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// enqueue queues a frame without blocking. It reports false when the queue
// is full or the writer has stopped.
func (w *writer) enqueue(frame []byte) bool {
	if w.stopped() {
		return false
	}

	select {
	case w.sendChannel <- frame:
		return true
	default:
		return false
	}
}

func (w *writer) stopped() bool {
	select {
	case <-w.doneChannel:
		return true
	default:
		return false
	}
}

func (w *writer) run() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.pinger != nil {
		ticker := w.clock.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case frame := <-w.sendChannel:
			if err := w.transport.WriteFrame(frame); err != nil {
				slog.Debug("Frame write failed, closing transport", "error", err)
				_ = w.transport.Close("")
				return
			}
			if w.metrics != nil {
				w.metrics.FramesSent.Inc()
			}
		case <-tick:
			if w.checkIdleTimeout() {
				_ = w.transport.Close("idle timeout")
				return
			}
			if err := w.pinger.Ping(); err != nil {
				slog.Debug("Ping failed, closing transport", "error", err)
				_ = w.transport.Close("")
				return
			}
		case <-w.doneChannel:
			return
		}
	}
}

// stop flushes nothing; it halts the writer and closes the transport with a
// close reason. Safe to call more than once and from any goroutine.
func (w *writer) stop(reason string) {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		w.wg.Wait()
		_ = w.transport.Close(reason)
	})
}

// recordActivity resets the idle timer.
func (w *writer) recordActivity() {
	w.activityMutex.Lock()
	defer w.activityMutex.Unlock()
	w.lastActivity = w.clock.Now()
	w.warningSent = false
}

// checkIdleTimeout sends one warning before the idle limit and reports
// whether the connection should be dropped.
func (w *writer) checkIdleTimeout() bool {
	w.activityMutex.Lock()
	idleDuration := w.clock.Since(w.lastActivity)
	warningSent := w.warningSent
	w.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		return true
	}

	if !warningSent && idleDuration >= idleWarningTime {
		if err := w.transport.WriteFrame(idleWarning); err == nil {
			w.activityMutex.Lock()
			w.warningSent = true
			w.activityMutex.Unlock()
		}
	}
	return false
}
