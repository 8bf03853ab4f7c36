package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"chatgpt-telegram-relay/internal/config"
	"chatgpt-telegram-relay/internal/domain"
)

const maxConcurrentBinds = 4

type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, token, webhookURL string) (domain.WebhookResult, error)
}

// WebhookBinder registers the webhook URL of every configured bot token.
type WebhookBinder struct {
	settings  *config.Settings
	registrar WebhookRegistrar
	log       *slog.Logger
}

func NewWebhookBinder(settings *config.Settings, registrar WebhookRegistrar) (*WebhookBinder, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings must not be nil")
	}
	if registrar == nil {
		return nil, errors.New("usecase: webhook registrar must not be nil")
	}
	return &WebhookBinder{settings: settings, registrar: registrar, log: slog.Default()}, nil
}

// WebhookURL returns the address the messaging provider delivers updates for token to.
func WebhookURL(domainName, token string) string {
	u := url.URL{Scheme: "https", Host: domainName, Path: "/telegram/" + token + "/webhook"}
	return u.String()
}

// Bind registers all tokens concurrently. A failing token is reported in its
// result entry and does not abort the others. Results keep token order.
func (b *WebhookBinder) Bind(ctx context.Context) ([]domain.WebhookResult, error) {
	if b.settings.WorkersDomain == "" {
		return nil, newError(ErrorConfiguration, "missing_WORKERS_DOMAIN", nil)
	}
	tokens := b.settings.Tokens()
	if len(tokens) == 0 {
		return nil, newError(ErrorConfiguration, "missing_TELEGRAM_TOKEN", nil)
	}

	results := make([]domain.WebhookResult, len(tokens))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBinds)
	for i, token := range tokens {
		g.Go(func() error {
			res, err := b.registrar.SetWebhook(gCtx, token, WebhookURL(b.settings.WorkersDomain, token))
			if err != nil {
				b.log.Error("bind webhook failed", "bot_id", res.BotID, "err", err)
				res.OK = false
				res.Description = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
