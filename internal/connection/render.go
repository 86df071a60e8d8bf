package connection

import "github.com/pscheid92/chatrelay/internal/domain"

const (
	rootLabel             = "root"
	defaultUpdatedMessage = "Folder updated successfully"
)

// renderOutbound turns a group event into the frame sent to the peer. The
// second result is false for events peers never see.
func renderOutbound(env domain.Envelope) (domain.Envelope, bool) {
	switch env.Type {
	case domain.TypeBroadcastMessage, domain.TypeSendData:
		out := domain.Envelope{
			Message: env.Message,
			Command: domain.CommandSendData,
			Sender:  domain.ServerSender,
			Extra:   env.Extra,
		}
		if isReplySeeking(env) {
			out.RequiresReply = true
			out.MessageID = env.MessageID
		}
		return out, true

	case domain.TypeFolderRequest:
		return domain.Envelope{
			Command:   domain.CommandReadFolderRequest,
			Type:      domain.TypeFolderRequest,
			Path:      env.Path,
			MessageID: env.MessageID,
			Message:   "Please provide folder structure for: " + pathLabel(env.Path),
		}, true

	case domain.TypeFolderUpdate:
		return domain.Envelope{
			Command:         domain.CommandUpdateFolderRequest,
			Type:            domain.TypeFolderUpdate,
			Path:            env.Path,
			FolderStructure: env.FolderStructure,
			MessageID:       env.MessageID,
			Message:         "Please update folder: " + pathLabel(env.Path),
		}, true
	}
	return domain.Envelope{}, false
}

func isReplySeeking(env domain.Envelope) bool {
	return env.Command == domain.CommandRequestReply && env.ReplyChannel != ""
}

func pathLabel(path string) string {
	if path == "" {
		return rootLabel
	}
	return path
}

// buildReply extracts the reply payload a peer sent, filling the defaults
// each reply kind carries.
func buildReply(channelName string, in domain.Inbound) domain.Reply {
	env := in.Envelope
	switch in.ReplyKind {
	case domain.KindFolder:
		structure := env.FolderStructure
		if structure == nil {
			structure = map[string]any{}
		}
		return domain.Reply{
			ChannelName:     channelName,
			Status:          domain.StatusSuccess,
			Path:            env.Path,
			FolderStructure: structure,
		}
	case domain.KindUpdate:
		return domain.Reply{
			ChannelName: channelName,
			Status:      orDefault(env.Status, domain.StatusSuccess),
			Message:     orDefault(env.Message, defaultUpdatedMessage),
		}
	default:
		return domain.Reply{
			ChannelName:   channelName,
			Status:        domain.StatusResponded,
			ActualMessage: env.Message,
		}
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
