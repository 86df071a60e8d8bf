package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pscheid92/chatrelay/internal/coordination"
)

const serverName = "folder_operations"

// Broadcaster runs one request/reply round.
type Broadcaster interface {
	BroadcastAndCollect(ctx context.Context, req coordination.Request) (*coordination.Result, error)
}

// Config holds per-tool wait times and defaults.
type Config struct {
	ReplyTimeout  time.Duration
	FolderTimeout time.Duration
	FolderPath    string
}

// Server exposes request/reply rounds as MCP tools.
type Server struct {
	mcp      *server.MCPServer
	handlers *toolHandlers
}

// NewServer creates the MCP server and registers its tools.
func NewServer(coord Broadcaster, cfg Config, version string) *Server {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithLogging(),
	)

	srv := &Server{
		mcp:      s,
		handlers: &toolHandlers{coord: coord, cfg: cfg},
	}
	srv.registerTools()
	return srv
}

// ServeStdio serves MCP over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	h := s.handlers

	s.mcp.AddTool(mcp.NewTool("send_broadcast_message",
		mcp.WithDescription(`Send a message to every connected WebSocket client and collect their replies.

Args:
    message: Text delivered to each client with requires_reply set

Returns:
    The message_id and the replies received before the timeout`),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Text delivered to each connected client"),
		),
	), h.sendBroadcastMessage)

	s.mcp.AddTool(mcp.NewTool("read_folder",
		mcp.WithDescription(`Request a folder structure from the connected frontend clients.

Args:
    path: Folder to read (default: the configured folder path)

Returns:
    Every folder structure reported before the timeout, or an error status if none arrived`),
		mcp.WithString("path",
			mcp.Description("Folder to read (default: the configured folder path)"),
		),
	), h.readFolder)

	s.mcp.AddTool(mcp.NewTool("update_folder",
		mcp.WithDescription(`Send a folder update to the connected frontend clients.

Args:
    path: Folder to update
    folder_structure: New structure of the folder

Returns:
    The confirmations received before the timeout, or a warning status if none arrived`),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Folder to update"),
		),
		mcp.WithObject("folder_structure",
			mcp.Required(),
			mcp.Description("New structure of the folder"),
		),
	), h.updateFolder)
}
