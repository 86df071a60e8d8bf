package connection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	pongDeadline   = 60 * time.Second
	maxFrameSize   = 1 << 20
	closeWriteWait = time.Second
)

// ErrTransportClosed is returned by WriteFrame after Close.
var ErrTransportClosed = errors.New("transport closed")

// Transport moves raw JSON frames to and from one peer. ReadFrame is called
// from a single reader goroutine and WriteFrame from a single writer
// goroutine; Close may be called from anywhere and more than once.
// ReadFrame returns io.EOF when the peer closed the connection normally.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close(reason string) error
}

// Pinger is implemented by transports that need keepalive probes.
type Pinger interface {
	Ping() error
}

// activityNotifier is implemented by transports that observe liveness
// signals (pongs) outside the frame stream.
type activityNotifier interface {
	OnActivity(fn func())
}

// WebSocketTransport carries frames as WebSocket text messages.
type WebSocketTransport struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	closeOnce sync.Once
	closed    chan struct{}

	activityMu sync.Mutex
	onActivity func()
}

var (
	_ Transport        = (*WebSocketTransport)(nil)
	_ Pinger           = (*WebSocketTransport)(nil)
	_ activityNotifier = (*WebSocketTransport)(nil)
)

// NewWebSocketTransport wraps an upgraded connection. The read deadline is
// extended on every pong.
func NewWebSocketTransport(conn *websocket.Conn, clock clockwork.Clock) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:   conn,
		clock:  clock,
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(maxFrameSize)
	t.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		t.extendReadDeadline()
		t.notifyActivity()
		return nil
	})
	return t
}

func (t *WebSocketTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		select {
		case <-t.closed:
			return nil, io.EOF
		default:
		}
		return nil, fmt.Errorf("read websocket message: %w", err)
	}
	t.extendReadDeadline()
	return data, nil
}

func (t *WebSocketTransport) WriteFrame(data []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) Ping() error {
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return fmt.Errorf("write websocket ping: %w", err)
	}
	return nil
}

// Close sends a close frame carrying reason, then closes the socket. The
// caller must make sure no WriteFrame is in flight.
func (t *WebSocketTransport) Close(reason string) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = t.conn.SetWriteDeadline(t.clock.Now().Add(closeWriteWait))
		_ = t.conn.WriteMessage(websocket.CloseMessage, msg)
		err = t.conn.Close()
	})
	return err
}

func (t *WebSocketTransport) OnActivity(fn func()) {
	t.activityMu.Lock()
	defer t.activityMu.Unlock()
	t.onActivity = fn
}

func (t *WebSocketTransport) notifyActivity() {
	t.activityMu.Lock()
	fn := t.onActivity
	t.activityMu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *WebSocketTransport) extendReadDeadline() {
	_ = t.conn.SetReadDeadline(t.clock.Now().Add(pongDeadline))
}

// StreamTransport carries one JSON frame per line over a byte stream, e.g.
// stdin/stdout of a bridge process.
type StreamTransport struct {
	scanner   *bufio.Scanner
	writeMu   sync.Mutex
	w         io.Writer
	closer    io.Closer
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Transport = (*StreamTransport)(nil)

// NewStreamTransport reads frames from r and writes them to w. closer is
// closed on Close and may be nil.
func NewStreamTransport(r io.Reader, w io.Writer, closer io.Closer) *StreamTransport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &StreamTransport{
		scanner: scanner,
		w:       w,
		closer:  closer,
		closed:  make(chan struct{}),
	}
}

func (t *StreamTransport) ReadFrame() ([]byte, error) {
	for t.scanner.Scan() {
		line := t.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
	if err := t.scanner.Err(); err != nil {
		select {
		case <-t.closed:
			return nil, io.EOF
		default:
		}
		return nil, fmt.Errorf("read stream frame: %w", err)
	}
	return nil, io.EOF
}

func (t *StreamTransport) WriteFrame(data []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := t.w.Write(buf); err != nil {
		return fmt.Errorf("write stream frame: %w", err)
	}
	return nil
}

func (t *StreamTransport) Close(string) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.closer != nil {
			err = t.closer.Close()
		}
	})
	return err
}
