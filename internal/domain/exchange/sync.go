package exchange

import "conductor-chat/internal/domain/model"

// RenderSync maps a direct-endpoint body to the assistant message.
// Priority: message, response, error (a failure), result, then the default
// success text.
func RenderSync(texts Catalog, r *model.SyncResult) *model.ChatMessage {
	var msg *model.ChatMessage
	switch {
	case r == nil:
		msg = model.NewChatMessage(model.RoleAssistant, texts.T(KeySyncDefault))
	case r.Message != "":
		msg = model.NewChatMessage(model.RoleAssistant, r.Message)
	case r.Response != "":
		msg = model.NewChatMessage(model.RoleAssistant, r.Response)
	case r.Error != "":
		msg = model.NewFailureMessage(texts.T(KeyErrorPrefix, r.Error))
	case r.Result != "":
		msg = model.NewChatMessage(model.RoleAssistant, r.Result)
	default:
		msg = model.NewChatMessage(model.RoleAssistant, texts.T(KeySyncDefault))
	}
	if r != nil && r.JobID != "" {
		msg = msg.WithJob(r.JobID)
	}
	return msg
}
