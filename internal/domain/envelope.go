package domain

import (
	"encoding/json"
	"fmt"
)

// BroadcastGroup is the long-lived group every connection joins on connect.
const BroadcastGroup = "broadcast_group"

// ServerSender tags frames the server has already broadcast, so peers that
// echo them back do not trigger another broadcast.
const ServerSender = "server"

// Event types carried in the envelope "type" field.
const (
	TypeGreeting         = "greeting"
	TypeBroadcastMessage = "broadcast_message"
	TypeSendData         = "send_data"
	TypeFolderRequest    = "folder_request"
	TypeFolderUpdate     = "folder_update"
	TypeFolderResponse   = "folder_response"
	TypeFolderUpdated    = "folder_updated"
)

// Commands carried in the envelope "command" field.
const (
	CommandRequestReply        = "request_reply"
	CommandSendData            = "send_data"
	CommandReadFolderRequest   = "read_folder_request"
	CommandUpdateFolderRequest = "update_folder_request"
	CommandFolderResponse      = "folder_response"
	CommandFolderUpdated       = "folder_updated"
)

// Reply statuses.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusWarning   = "warning"
	StatusDelivered = "delivered"
	StatusResponded = "responded"
)

// Envelope is the unit exchanged between group members and over the wire.
// Known fields are typed; anything else a peer sends survives in Extra.
type Envelope struct {
	Type            string         `json:"type,omitempty"`
	Command         string         `json:"command,omitempty"`
	Message         string         `json:"message,omitempty"`
	MessageID       string         `json:"message_id,omitempty"`
	IsResponse      bool           `json:"is_response,omitempty"`
	ReplyChannel    string         `json:"reply_channel,omitempty"`
	RequiresReply   bool           `json:"requires_reply,omitempty"`
	Status          string         `json:"status,omitempty"`
	Sender          string         `json:"sender,omitempty"`
	ChannelName     string         `json:"channel_name,omitempty"`
	Path            string         `json:"path,omitempty"`
	FolderStructure map[string]any `json:"folder_structure,omitempty"`
	ActualMessage   string         `json:"actual_message,omitempty"`
	Content         *Reply         `json:"content,omitempty"`

	Extra map[string]any `json:"-"`
}

// knownFields lists the JSON keys mapped onto Envelope fields.
var knownFields = map[string]struct{}{
	"type": {}, "command": {}, "message": {}, "message_id": {}, "is_response": {},
	"reply_channel": {}, "requires_reply": {}, "status": {}, "sender": {},
	"channel_name": {}, "path": {}, "folder_structure": {}, "actual_message": {},
	"content": {},
}

// IsReservedField reports whether key names a typed envelope field.
// Such keys are never taken from Extra.
func IsReservedField(key string) bool {
	_, ok := knownFields[key]
	return ok
}

type envelopeAlias Envelope

// MarshalJSON merges Extra into the object. Extra keys naming a typed field
// are dropped, so an empty typed field stays absent on the wire.
func (e Envelope) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(envelopeAlias(e))
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(e.Extra) == 0 {
		return data, nil
	}

	merged := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		if IsReservedField(k) {
			continue
		}
		merged[k] = v
	}
	var typed map[string]any
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, fmt.Errorf("merge envelope extras: %w", err)
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the typed fields and keeps the rest in Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var alias envelopeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Envelope(alias)
	for k, v := range raw {
		if _, ok := knownFields[k]; ok {
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return err
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[k] = value
	}
	return nil
}

// DecodeFrame parses a raw inbound text frame. Anything that is not a JSON
// object is reported as ErrMalformedFrame.
func DecodeFrame(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

// Is reports whether the envelope matches name in either discriminator.
// Peers are inconsistent about which of the two they fill in.
func (e Envelope) Is(name string) bool {
	return e.Command == name || e.Type == name
}
