package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/connection"
)

// handleWebSocket upgrades the request and serves the peer until it
// disconnects or the server shuts down.
func (s *Server) handleWebSocket(c echo.Context) error {
	if !s.connections.Acquire() {
		if s.wsMetrics != nil {
			s.wsMetrics.RejectedConnects.Inc()
		}
		slog.Warn("Connection limit reached", "remote_addr", c.RealIP(), "max", s.config.MaxConnections)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "connection limit reached")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.connections.Release()
		// The upgrader has already written the HTTP error.
		slog.Debug("WebSocket upgrade failed", "remote_addr", c.RealIP(), "error", err)
		return nil
	}

	s.connWG.Add(1)
	defer func() {
		s.connections.Release()
		s.connWG.Done()
	}()

	transport := connection.NewWebSocketTransport(conn, s.clock)
	handler := connection.NewHandler(transport, s.registry, s.clock, s.connOptions, s.wsMetrics)

	slog.Debug("WebSocket upgraded", "channel_name", handler.ChannelName(), "remote_addr", c.RealIP())
	if err := handler.Serve(s.connCtx); err != nil {
		slog.Warn("Peer connection ended with error", "channel_name", handler.ChannelName(), "error", err)
	}
	return nil
}
