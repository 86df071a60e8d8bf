package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
)

const (
	noFolderResponses     = "No folder responses received from clients"
	noUpdateConfirmations = "Update sent but no confirmations received"
)

type toolHandlers struct {
	coord Broadcaster
	cfg   Config
}

// BroadcastResult is returned by send_broadcast_message.
type BroadcastResult struct {
	MessageID string         `json:"message_id"`
	Replies   []domain.Reply `json:"replies"`
}

// FolderResponse is one client's answer to read_folder.
type FolderResponse struct {
	Channel         string         `json:"channel"`
	Path            string         `json:"path"`
	FolderStructure map[string]any `json:"folder_structure"`
	Status          string         `json:"status"`
}

// UpdateConfirmation is one client's answer to update_folder.
type UpdateConfirmation struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FolderResult is returned by read_folder and update_folder.
type FolderResult struct {
	Status        string               `json:"status"`
	Message       string               `json:"message,omitempty"`
	Path          string               `json:"path"`
	Responses     []FolderResponse     `json:"responses,omitempty"`
	Confirmations []UpdateConfirmation `json:"confirmations,omitempty"`
	MessageID     string               `json:"message_id"`
}

func (h *toolHandlers) sendBroadcastMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.coord.BroadcastAndCollect(ctx, coordination.Request{
		Message: message,
		Kind:    domain.KindGeneric,
		Timeout: h.cfg.ReplyTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "send_broadcast_message failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(BroadcastResult{MessageID: result.MessageID, Replies: result.Replies})
}

func (h *toolHandlers) readFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("path", h.cfg.FolderPath)

	result, err := h.coord.BroadcastAndCollect(ctx, coordination.Request{
		Message: "Please provide folder structure for: " + path,
		Kind:    domain.KindFolder,
		Path:    path,
		Timeout: h.cfg.FolderTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "read_folder failed", "path", path, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := FolderResult{Path: path, MessageID: result.MessageID}
	if len(result.Replies) == 0 {
		out.Status = domain.StatusError
		out.Message = noFolderResponses
		slog.WarnContext(ctx, "No folder responses received", "path", path, "message_id", result.MessageID)
		return jsonResult(out)
	}

	out.Status = domain.StatusSuccess
	for _, reply := range result.Replies {
		// An empty structure is dropped on the wire; report it as {} rather than null.
		structure := reply.FolderStructure
		if structure == nil {
			structure = map[string]any{}
		}
		out.Responses = append(out.Responses, FolderResponse{
			Channel:         reply.ChannelName,
			Path:            reply.Path,
			FolderStructure: structure,
			Status:          reply.Status,
		})
	}
	return jsonResult(out)
}

func (h *toolHandlers) updateFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	structure, ok := request.GetArguments()["folder_structure"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("folder_structure must be an object"), nil
	}

	result, err := h.coord.BroadcastAndCollect(ctx, coordination.Request{
		Message:         "Please update folder: " + path,
		Kind:            domain.KindUpdate,
		Path:            path,
		FolderStructure: structure,
		Timeout:         h.cfg.FolderTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "update_folder failed", "path", path, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := FolderResult{Path: path, MessageID: result.MessageID}
	if len(result.Replies) == 0 {
		out.Status = domain.StatusWarning
		out.Message = noUpdateConfirmations
		return jsonResult(out)
	}

	out.Status = domain.StatusSuccess
	for _, reply := range result.Replies {
		out.Confirmations = append(out.Confirmations, UpdateConfirmation{
			Channel: reply.ChannelName,
			Status:  reply.Status,
			Message: reply.Message,
		})
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
