package domain

import "fmt"

// ReplyKind selects the request/reply flavour: which request event goes out
// and which reply event type the requester collects.
type ReplyKind string

const (
	KindGeneric ReplyKind = "generic"
	KindFolder  ReplyKind = "folder"
	KindUpdate  ReplyKind = "update"
)

// ParseReplyKind validates a kind name. Empty means generic.
func ParseReplyKind(s string) (ReplyKind, error) {
	switch ReplyKind(s) {
	case "", KindGeneric:
		return KindGeneric, nil
	case KindFolder:
		return KindFolder, nil
	case KindUpdate:
		return KindUpdate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownReplyKind, s)
	}
}

// ReplyChannel names the correlation group for one request.
func ReplyChannel(kind ReplyKind, messageID string) string {
	return string(kind) + "_reply_" + messageID
}

// ReplyType is the envelope type a reply of this kind travels as.
func ReplyType(kind ReplyKind) string {
	return string(kind) + "_reply"
}

// RequestType is the envelope type the request of this kind is broadcast as.
func RequestType(kind ReplyKind) string {
	switch kind {
	case KindFolder:
		return TypeFolderRequest
	case KindUpdate:
		return TypeFolderUpdate
	default:
		return TypeBroadcastMessage
	}
}

// Reply is one collected answer from a connected peer.
type Reply struct {
	ChannelName     string         `json:"channel_name"`
	Status          string         `json:"status"`
	ActualMessage   string         `json:"actual_message,omitempty"`
	Message         string         `json:"message,omitempty"`
	Path            string         `json:"path,omitempty"`
	FolderStructure map[string]any `json:"folder_structure,omitempty"`
}

// NewReplyEnvelope wraps reply into the envelope routed to the correlation
// group of (kind, messageID).
func NewReplyEnvelope(kind ReplyKind, messageID string, reply Reply) Envelope {
	return Envelope{
		Type:        ReplyType(kind),
		MessageID:   messageID,
		Status:      reply.Status,
		ChannelName: reply.ChannelName,
		Content:     &reply,
	}
}
