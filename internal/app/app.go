// Package app assembles the relay from the runtime settings and AWS clients.
package app

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chatgpt-telegram-relay/handler"
	"chatgpt-telegram-relay/internal/config"
	"chatgpt-telegram-relay/internal/integrations/openai"
	"chatgpt-telegram-relay/internal/integrations/paramstore"
	"chatgpt-telegram-relay/internal/integrations/telegram"
	"chatgpt-telegram-relay/internal/repository"
	"chatgpt-telegram-relay/internal/usecase"
)

type App struct {
	Settings *config.Settings
	Handler  *handler.Handler
}

// New loads the settings once and wires every collaborator. When level is
// non-nil it is set to the configured log level.
func New(ctx context.Context, level *slog.LevelVar) (*App, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	settings, err := config.Load(ctx, params)
	if err != nil {
		return nil, err
	}
	if level != nil {
		level.Set(settings.SlogLevel())
	}

	// The store stays a nil interface without a table so readiness can report it.
	var store usecase.Store
	if settings.StateTable != "" {
		repo, err := repository.New(awsdynamodb.NewFromConfig(cfg), settings.StateTable)
		if err != nil {
			return nil, fmt.Errorf("app: create state store: %w", err)
		}
		store = repo
	} else {
		slog.Warn("STATE_TABLE is not set, messages will be answered with a configuration notice")
	}

	completer, err := openai.NewClient(settings.APIKey,
		openai.WithBaseURL(settings.OpenAIBaseURL),
		openai.WithModel(settings.OpenAIModel),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}
	messenger, err := telegram.New(settings.Tokens())
	if err != nil {
		return nil, fmt.Errorf("app: create Telegram client: %w", err)
	}

	svc, err := usecase.NewService(settings, store, completer, messenger)
	if err != nil {
		return nil, fmt.Errorf("app: create service: %w", err)
	}
	binder, err := usecase.NewWebhookBinder(settings, messenger)
	if err != nil {
		return nil, fmt.Errorf("app: create webhook binder: %w", err)
	}
	h, err := handler.NewHandler(svc, binder)
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}
	return &App{Settings: settings, Handler: h}, nil
}
