package usecase

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-telegram/bot/models"

	"chatgpt-telegram-relay/internal/domain"
)

const parseModeMarkdown = "Markdown"

func (s *Service) checkToken(ctx context.Context, st *State) Outcome {
	if s.settings.AllowsToken(st.Token) {
		return Continue()
	}
	s.logger(ctx).Warn("request rejected", "err", newError(ErrorUnauthorized, "token_not_allowed", nil))
	return noop("This bot token is not allowed. Ask the administrator to add it to the allow-list.")
}

func isGroup(t models.ChatType) bool {
	return t == models.ChatTypeGroup || t == models.ChatTypeSupergroup
}

// resolveContext derives the conversation identity and reply defaults from
// the message, then loads the stored user configuration.
func (s *Service) resolveContext(ctx context.Context, st *State) Outcome {
	msg := st.Message
	if msg == nil || msg.Chat.ID == 0 {
		return noop("ID NOT FOUND")
	}

	st.Text = msg.Text
	if msg.From != nil {
		st.SenderID = msg.From.ID
	}
	st.Reply = domain.ReplyContext{ChatID: msg.Chat.ID, ParseMode: parseModeMarkdown}
	st.Identity = domain.Identity{
		ChatID: msg.Chat.ID,
		BotID:  s.settings.BotID(st.Token),
	}
	if isGroup(msg.Chat.Type) {
		st.Identity.Group = true
		st.Reply.ReplyToMessageID = msg.ID
		if !s.settings.GroupChatBotMode && st.SenderID != 0 {
			st.Identity.UserID = st.SenderID
		}
	}
	st.Config = DefaultUserConfig()

	if s.store == nil {
		return Continue()
	}
	if s.settings.DebugMode {
		s.captureMessage(ctx, msg)
	}
	s.loadUserConfig(ctx, st)
	return Continue()
}

// loadUserConfig keeps the defaults when the stored blob is missing or unreadable.
func (s *Service) loadUserConfig(ctx context.Context, st *State) {
	raw, ok, err := s.store.Get(ctx, st.Identity.ConfigKey())
	if err != nil {
		s.logger(ctx).Error("load user config failed", "key", st.Identity.ConfigKey(), "err", err)
		return
	}
	if !ok {
		return
	}
	if err := st.Config.merge(raw); err != nil {
		s.logger(ctx).Warn("ignoring malformed user config", "key", st.Identity.ConfigKey(), "err", err)
	}
}

func (s *Service) captureMessage(ctx context.Context, msg *models.Message) {
	blob, err := json.Marshal(msg)
	if err != nil {
		s.logger(ctx).Warn("encode debug message failed", "err", err)
		return
	}
	key := "last_message:" + strconv.FormatInt(msg.Chat.ID, 10)
	if err := s.store.Put(ctx, key, string(blob), 0); err != nil {
		s.logger(ctx).Warn("store debug message failed", "key", key, "err", err)
	}
}
