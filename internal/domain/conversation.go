package domain

import "strconv"

// Identity partitions transcripts and configuration for one conversation.
type Identity struct {
	ChatID int64
	// BotID is set when one deployment serves several bot tokens.
	BotID string
	// UserID is set only for group chats with per-user history.
	UserID int64
	Group  bool
}

// HistoryKey returns the store key of the conversation transcript.
func (id Identity) HistoryKey() string {
	key := "history:" + strconv.FormatInt(id.ChatID, 10)
	if id.BotID != "" {
		key += ":" + id.BotID
	}
	if id.UserID != 0 {
		key += ":" + strconv.FormatInt(id.UserID, 10)
	}
	return key
}

// ConfigKey returns the store key of the per-chat user configuration.
func (id Identity) ConfigKey() string {
	key := "user_config:" + strconv.FormatInt(id.ChatID, 10)
	if id.BotID != "" {
		key += ":" + id.BotID
	}
	return key
}

// GroupAdminKey returns the store key of the cached administrator list, or ""
// outside group chats.
func (id Identity) GroupAdminKey() string {
	if !id.Group {
		return ""
	}
	return "group_admin:" + strconv.FormatInt(id.ChatID, 10)
}

// ChatAdmin is one entry of a group's administrator list as cached in the store.
type ChatAdmin struct {
	User struct {
		ID int64 `json:"id"`
	} `json:"user"`
	Status string `json:"status"`
}
