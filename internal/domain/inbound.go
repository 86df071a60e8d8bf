package domain

// InboundKind is the dispatch class of a frame received from a peer.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundReply
	InboundBroadcast
	InboundEcho
)

func (k InboundKind) String() string {
	switch k {
	case InboundReply:
		return "reply"
	case InboundBroadcast:
		return "broadcast"
	case InboundEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// Inbound is the classified form of a peer frame.
type Inbound struct {
	Kind      InboundKind
	ReplyKind ReplyKind
	Envelope  Envelope
}

// Classify decides what a peer frame is. Folder responses and update
// confirmations are checked before the generic is_response marker.
// Replies without a message_id cannot be routed and classify as unknown.
func Classify(env Envelope) Inbound {
	in := Inbound{Envelope: env}

	switch {
	case env.Is(TypeFolderResponse):
		in.ReplyKind = KindFolder
		in.Kind = replyOrUnknown(env)
	case env.Is(TypeFolderUpdated):
		in.ReplyKind = KindUpdate
		in.Kind = replyOrUnknown(env)
	case env.IsResponse && env.MessageID != "":
		in.Kind, in.ReplyKind = InboundReply, KindGeneric
	case env.IsResponse || env.Sender == ServerSender:
		in.Kind = InboundEcho
	case isBroadcastable(env):
		in.Kind = InboundBroadcast
	default:
		in.Kind = InboundUnknown
	}
	return in
}

func replyOrUnknown(env Envelope) InboundKind {
	if env.MessageID == "" {
		return InboundUnknown
	}
	return InboundReply
}

func isBroadcastable(env Envelope) bool {
	if env.Message == "" {
		return false
	}
	for _, discriminator := range []string{env.Type, env.Command} {
		switch discriminator {
		case "", TypeBroadcastMessage, TypeSendData:
		default:
			return false
		}
	}
	return true
}
