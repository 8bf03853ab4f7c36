package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used for persisted
// transcripts and for the completion request payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyContext tells the messaging provider where and how to deliver a reply.
type ReplyContext struct {
	ChatID           int64
	ReplyToMessageID int
	ParseMode        string
}

// WebhookResult is the outcome of registering one bot token's webhook.
type WebhookResult struct {
	BotID       string `json:"bot_id"`
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}
