package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		env       Envelope
		wantKind  InboundKind
		wantReply ReplyKind
	}{
		{"folder response", Envelope{Type: TypeFolderResponse, MessageID: "m"}, InboundReply, KindFolder},
		{"folder response via command", Envelope{Command: TypeFolderResponse, MessageID: "m"}, InboundReply, KindFolder},
		{"folder updated", Envelope{Command: TypeFolderUpdated, MessageID: "m"}, InboundReply, KindUpdate},
		{"folder response before is_response", Envelope{Type: TypeFolderResponse, IsResponse: true, MessageID: "m"}, InboundReply, KindFolder},
		{"generic reply", Envelope{IsResponse: true, MessageID: "m", Message: "pong"}, InboundReply, KindGeneric},
		{"folder response without id", Envelope{Type: TypeFolderResponse}, InboundUnknown, ""},
		{"response without id is echo", Envelope{IsResponse: true, Message: "x"}, InboundEcho, ""},
		{"server echo", Envelope{Sender: ServerSender, Message: "x", Command: CommandSendData}, InboundEcho, ""},
		{"plain message", Envelope{Message: "hi"}, InboundBroadcast, ""},
		{"typed broadcast", Envelope{Type: TypeBroadcastMessage, Message: "hi"}, InboundBroadcast, ""},
		{"send_data command", Envelope{Command: CommandSendData, Message: "hi"}, InboundBroadcast, ""},
		{"empty message", Envelope{Type: TypeBroadcastMessage}, InboundUnknown, ""},
		{"unknown type", Envelope{Type: "subscribe", Message: "hi"}, InboundUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Classify(tt.env)
			assert.Equal(t, tt.wantKind, in.Kind, in.Kind.String())
			assert.Equal(t, tt.wantReply, in.ReplyKind)
		})
	}
}

func TestInboundKind_String(t *testing.T) {
	assert.Equal(t, "reply", InboundReply.String())
	assert.Equal(t, "broadcast", InboundBroadcast.String())
	assert.Equal(t, "echo", InboundEcho.String())
	assert.Equal(t, "unknown", InboundUnknown.String())
}
