package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHTTP(t *testing.T, srv *Server) string {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialPeer(t *testing.T, url string, header http.Header) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	greeting := readFrame(t, conn)
	require.Equal(t, domain.TypeGreeting, greeting["type"])
	return conn
}

func readFrame(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_PeerReceivesAPIBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialPeer(t, startHTTP(t, srv), nil)

	rec := postJSON(srv, "/api/broadcast", `{"message":"hello peers"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	frame := readFrame(t, conn)
	assert.Equal(t, "hello peers", frame["message"])
	assert.Equal(t, domain.CommandSendData, frame["command"])
	assert.Equal(t, domain.ServerSender, frame["sender"])
}

func TestWebSocket_PeerBroadcastReachesOtherPeers(t *testing.T) {
	srv, _ := newTestServer(t)
	url := startHTTP(t, srv)
	alice := dialPeer(t, url, nil)
	bob := dialPeer(t, url, nil)

	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte(`{"message":"from alice"}`)))

	assert.Equal(t, "from alice", readFrame(t, bob)["message"])
	assert.Equal(t, "from alice", readFrame(t, alice)["message"])
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	srv, _ := newTestServer(t, withConfig(func(cfg *config.Config) {
		cfg.MaxConnections = 1
	}))
	url := startHTTP(t, srv)
	_ = dialPeer(t, url, nil)

	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	url := startHTTP(t, srv)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := ws.DefaultDialer.Dial(url, header)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, int64(0), srv.connections.Current())
}

func TestWebSocket_ShutdownClosesPeers(t *testing.T) {
	srv, registry := newTestServer(t)
	conn := dialPeer(t, startHTTP(t, srv), nil)
	require.Equal(t, 1, registry.MemberCount(domain.BroadcastGroup))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *ws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "server shutting down", closeErr.Text)
	assert.Equal(t, 0, registry.MemberCount(domain.BroadcastGroup))
	assert.Equal(t, int64(0), srv.connections.Current())
}
