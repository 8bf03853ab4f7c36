// Package telegram delivers replies and queries chat state through the
// Telegram Bot API, one go-telegram/bot instance per configured token.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"chatgpt-telegram-relay/internal/domain"
)

// Client routes each call to the bot registered for the given token. The bot
// set is fixed at construction and safe for concurrent use.
type Client struct {
	bots map[string]*bot.Bot
}

// New creates one bot per distinct token. getMe is skipped so that cold starts
// do not pay a network round trip per token.
func New(tokens []string, opts ...bot.Option) (*Client, error) {
	c := &Client{bots: make(map[string]*bot.Bot, len(tokens))}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, ok := c.bots[token]; ok {
			continue
		}
		b, err := bot.New(token, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("telegram: create bot %s: %w", BotID(token), err)
		}
		c.bots[token] = b
	}
	return c, nil
}

// BotID returns the numeric bot id prefix of a token.
func BotID(token string) string {
	id, _, _ := strings.Cut(token, ":")
	return id
}

func (c *Client) botFor(token string) (*bot.Bot, error) {
	b, ok := c.bots[token]
	if !ok {
		return nil, errors.New("telegram: unknown bot token")
	}
	return b, nil
}

// SendMessage delivers text to rc.ChatID. When the formatted send is rejected
// (typically unbalanced Markdown in model output) it is retried once as plain text.
func (c *Client) SendMessage(ctx context.Context, token, text string, rc domain.ReplyContext) error {
	b, err := c.botFor(token)
	if err != nil {
		return err
	}
	params := &bot.SendMessageParams{
		ChatID: rc.ChatID,
		Text:   text,
	}
	if rc.ReplyToMessageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: rc.ReplyToMessageID}
	}
	if rc.ParseMode != "" {
		params.ParseMode = models.ParseMode(rc.ParseMode)
		_, err := b.SendMessage(ctx, params)
		if err == nil {
			return nil
		}
		slog.Warn("formatted send rejected, retrying as plain text", "chat_id", rc.ChatID, "err", err)
		params.ParseMode = ""
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram: SendMessage: %w", err)
	}
	return nil
}

// SendTyping shows the typing indicator in chatID.
func (c *Client) SendTyping(ctx context.Context, token string, chatID int64) error {
	b, err := c.botFor(token)
	if err != nil {
		return err
	}
	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		return fmt.Errorf("telegram: SendChatAction: %w", err)
	}
	return nil
}

// FetchAdministrators returns the owner and administrators of a group chat.
func (c *Client) FetchAdministrators(ctx context.Context, token string, chatID int64) ([]domain.ChatAdmin, error) {
	b, err := c.botFor(token)
	if err != nil {
		return nil, err
	}
	members, err := b.GetChatAdministrators(ctx, &bot.GetChatAdministratorsParams{ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("telegram: GetChatAdministrators: %w", err)
	}

	admins := make([]domain.ChatAdmin, 0, len(members))
	for _, m := range members {
		admin, ok, err := toChatAdmin(m)
		if err != nil {
			return nil, fmt.Errorf("telegram: GetChatAdministrators: %w", err)
		}
		if ok {
			admins = append(admins, admin)
		}
	}
	return admins, nil
}

// toChatAdmin reduces a chat member to the {user:{id}, status} shape kept in
// the admin cache. Both variants serialize "user" and "status" on the wire.
func toChatAdmin(m models.ChatMember) (domain.ChatAdmin, bool, error) {
	var variant any
	switch {
	case m.Owner != nil:
		variant = m.Owner
	case m.Administrator != nil:
		variant = m.Administrator
	default:
		return domain.ChatAdmin{}, false, nil
	}
	raw, err := json.Marshal(variant)
	if err != nil {
		return domain.ChatAdmin{}, false, fmt.Errorf("encode chat member: %w", err)
	}
	var admin domain.ChatAdmin
	if err := json.Unmarshal(raw, &admin); err != nil {
		return domain.ChatAdmin{}, false, fmt.Errorf("decode chat member: %w", err)
	}
	return admin, admin.User.ID != 0, nil
}

// SetWebhook points the token's bot at webhookURL.
func (c *Client) SetWebhook(ctx context.Context, token, webhookURL string) (domain.WebhookResult, error) {
	res := domain.WebhookResult{BotID: BotID(token)}
	b, err := c.botFor(token)
	if err != nil {
		return res, err
	}
	ok, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL})
	if err != nil {
		return res, fmt.Errorf("telegram: SetWebhook: %w", err)
	}
	res.OK = ok
	if ok {
		res.Description = "Webhook was set"
	}
	return res, nil
}
