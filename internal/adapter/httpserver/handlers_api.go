package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chatrelay/internal/coordination"
	"github.com/pscheid92/chatrelay/internal/domain"
	apperrors "github.com/pscheid92/chatrelay/internal/platform/errors"
)

const maxRequestTimeout = 60 * time.Second

type broadcastRequest struct {
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type replyRequest struct {
	Message         string         `json:"message"`
	Kind            string         `json:"kind"`
	Path            string         `json:"path"`
	FolderStructure map[string]any `json:"folder_structure"`
	TimeoutMS       int64          `json:"timeout_ms"`
	StopAfter       int            `json:"stop_after"`
}

func (s *Server) registerAPIRoutes(rateLimiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api", rateLimiter)
	api.POST("/broadcast", s.handleBroadcast)
	api.POST("/requests", s.handleRequest)
	api.GET("/instances", s.handleInstances)
	api.GET("/instances/:id", s.handleInstance)
}

// handleBroadcast fans a plain message out to every connected peer.
func (s *Server) handleBroadcast(c echo.Context) error {
	var body broadcastRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}
	if body.Message == "" {
		return apperrors.ValidationError("message is required")
	}
	for key := range body.Extra {
		if domain.IsReservedField(key) {
			return apperrors.ValidationError("extra must not set reserved field").WithContext("field", key)
		}
	}

	env := domain.Envelope{
		Type:    domain.TypeBroadcastMessage,
		Message: body.Message,
		Extra:   body.Extra,
	}
	if err := s.registry.Publish(c.Request().Context(), domain.BroadcastGroup, env); err != nil {
		return apperrors.UnavailableError("broadcast failed").WithContext("cause", err.Error())
	}

	if err := c.JSON(http.StatusAccepted, map[string]string{"status": "sent"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleRequest runs one request/reply round and returns what was collected.
func (s *Server) handleRequest(c echo.Context) error {
	var body replyRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}

	kind, err := domain.ParseReplyKind(body.Kind)
	if err != nil {
		return apperrors.ValidationError("unknown reply kind").WithContext("kind", body.Kind)
	}
	if kind == domain.KindGeneric && body.Message == "" {
		return apperrors.ValidationError("message is required")
	}
	if kind == domain.KindUpdate && body.FolderStructure == nil {
		return apperrors.ValidationError("folder_structure is required for update requests")
	}
	if body.StopAfter < 0 {
		return apperrors.ValidationError("stop_after must not be negative")
	}

	timeout, err := s.requestTimeout(kind, body.TimeoutMS)
	if err != nil {
		return err
	}

	path := body.Path
	if path == "" && kind != domain.KindGeneric {
		path = s.config.FolderPath
	}

	result, err := s.coordinator.BroadcastAndCollect(c.Request().Context(), coordination.Request{
		Message:         body.Message,
		Kind:            kind,
		Timeout:         timeout,
		Path:            path,
		FolderStructure: body.FolderStructure,
		StopAfter:       body.StopAfter,
	})
	if err != nil {
		if errors.Is(err, domain.ErrRegistryClosed) {
			return apperrors.UnavailableError("relay is shutting down")
		}
		return apperrors.InternalError("request round failed", err).WithContext("kind", string(kind))
	}
	if result.Replies == nil {
		result.Replies = []domain.Reply{}
	}

	slog.InfoContext(c.Request().Context(), "Request round completed",
		"kind", kind, "message_id", result.MessageID, "replies", len(result.Replies))

	if err := c.JSON(http.StatusOK, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) requestTimeout(kind domain.ReplyKind, timeoutMS int64) (time.Duration, error) {
	if timeoutMS < 0 {
		return 0, apperrors.ValidationError("timeout_ms must not be negative")
	}
	if timeoutMS == 0 {
		if kind == domain.KindGeneric {
			return s.config.ReplyTimeout, nil
		}
		return s.config.FolderTimeout, nil
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout > maxRequestTimeout {
		return 0, apperrors.ValidationError("timeout_ms exceeds the maximum").
			WithContext("max_ms", maxRequestTimeout.Milliseconds())
	}
	return timeout, nil
}

// handleInstances lists relay processes sharing the channel layer.
func (s *Server) handleInstances(c echo.Context) error {
	if s.instances == nil {
		return apperrors.UnavailableError("instance presence requires REDIS_URL")
	}

	instances, err := s.instances.Active(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to list instances", err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"instances": instances}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleInstance returns one active relay process by ID.
func (s *Server) handleInstance(c echo.Context) error {
	if s.instances == nil {
		return apperrors.UnavailableError("instance presence requires REDIS_URL")
	}

	id := c.Param("id")
	instances, err := s.instances.Active(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to list instances", err)
	}

	for _, info := range instances {
		if info.InstanceID != id {
			continue
		}
		if err := c.JSON(http.StatusOK, info); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}
	return apperrors.NotFoundError("instance not active").WithContext("instance_id", id)
}
