// Package correlation carries the IDs that tie log lines together: the
// HTTP correlation ID of an API call and the message ID of a request/reply
// round. A round started from an API call carries both.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type (
	correlationKey struct{}
	messageKey     struct{}
)

// NewID generates an 8-character hex correlation ID.
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithID returns a context carrying the correlation ID of an inbound call.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// ID extracts the correlation ID, returning ("", false) if absent.
func ID(ctx context.Context) (string, bool) {
	return stringValue(ctx, correlationKey{})
}

// WithMessageID returns a context carrying the message ID of a request/reply round.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageKey{}, messageID)
}

// MessageID extracts the round's message ID, returning ("", false) if absent.
func MessageID(ctx context.Context) (string, bool) {
	return stringValue(ctx, messageKey{})
}

func stringValue(ctx context.Context, key any) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// Handler wraps a slog.Handler and adds "correlation_id" and "message_id"
// attributes for whichever IDs the context carries.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := MessageID(ctx); ok {
		r.AddAttrs(slog.String("message_id", id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
