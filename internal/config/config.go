// Package config builds the immutable runtime Settings of a deployment from
// environment variables, optionally resolving secrets from SSM Parameter Store.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DefaultMaxHistoryLength = 20
	DefaultOpenAIModel      = "gpt-3.5-turbo"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultLogLevel         = "info"
)

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)

// Settings is built once per cold start and shared read-only by all requests.
type Settings struct {
	APIKey                  string
	TelegramToken           string   `validate:"omitempty,telegram_token"`
	TelegramAvailableTokens []string `validate:"dive,telegram_token"`
	WorkersDomain           string   `validate:"omitempty,hostname_port|fqdn"`
	GenerousMode            bool
	ChatWhiteList           []string
	BotName                 string
	GroupChatBotMode        bool
	DebugMode               bool
	MaxHistoryLength        int    `validate:"gte=3"`
	OpenAIModel             string `validate:"required"`
	OpenAIBaseURL           string `validate:"required,url"`
	StateTable              string
	ParamPrefix             string
	LogLevel                string `validate:"oneof=debug info warn error"`
}

// TokenGetter resolves credential parameters. *paramstore.Client satisfies it.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// Load reads Settings from the environment. When PARAM_PREFIX is set and a
// credential is not provided directly, it is fetched from secrets as
// <prefix>/open-ai-token or <prefix>/telegram-token.
func Load(ctx context.Context, secrets TokenGetter) (*Settings, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	s := &Settings{
		APIKey:                  strings.TrimSpace(v.GetString("API_KEY")),
		TelegramToken:           strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		TelegramAvailableTokens: splitList(v.GetString("TELEGRAM_AVAILABLE_TOKENS")),
		WorkersDomain:           strings.TrimSpace(v.GetString("WORKERS_DOMAIN")),
		GenerousMode:            v.GetBool("I_AM_A_GENEROUS_PERSON"),
		ChatWhiteList:           splitList(v.GetString("CHAT_WHITE_LIST")),
		BotName:                 strings.TrimPrefix(strings.TrimSpace(v.GetString("BOT_NAME")), "@"),
		GroupChatBotMode:        v.GetBool("GROUP_CHAT_BOT_MODE"),
		DebugMode:               v.GetBool("DEBUG_MODE"),
		MaxHistoryLength:        envInt(v, "MAX_HISTORY_LENGTH", DefaultMaxHistoryLength),
		OpenAIModel:             strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		OpenAIBaseURL:           strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		StateTable:              strings.TrimSpace(v.GetString("STATE_TABLE")),
		ParamPrefix:             strings.TrimRight(strings.TrimSpace(v.GetString("PARAM_PREFIX")), "/"),
		LogLevel:                strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}

	if err := s.resolveSecrets(ctx, secrets); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded",
		"tokens", len(s.Tokens()),
		"bot_name", s.BotName,
		"group_shared_history", s.GroupChatBotMode,
		"max_history_length", s.MaxHistoryLength,
		"model", s.OpenAIModel,
		"state_table", s.StateTable,
		"api_key_set", s.APIKey != "")
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MAX_HISTORY_LENGTH", DefaultMaxHistoryLength)
	v.SetDefault("OPENAI_MODEL", DefaultOpenAIModel)
	v.SetDefault("OPENAI_BASE_URL", DefaultOpenAIBaseURL)
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
}

func (s *Settings) resolveSecrets(ctx context.Context, secrets TokenGetter) error {
	if s.ParamPrefix == "" || secrets == nil {
		return nil
	}
	if s.APIKey == "" {
		key, err := secrets.GetToken(ctx, s.ParamPrefix+"/open-ai-token")
		if err != nil {
			return fmt.Errorf("config: resolve API key: %w", err)
		}
		s.APIKey = key
	}
	if s.TelegramToken == "" && len(s.TelegramAvailableTokens) == 0 {
		token, err := secrets.GetToken(ctx, s.ParamPrefix+"/telegram-token")
		if err != nil {
			return fmt.Errorf("config: resolve telegram token: %w", err)
		}
		s.TelegramToken = token
	}
	return nil
}

// Validate checks field formats. A missing API key is not an error here: the
// pipeline reports it to users instead.
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("telegram_token", func(fl validator.FieldLevel) bool {
		return tokenPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("config: register validation: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("config: invalid settings: %w", err)
	}
	return nil
}

// Tokens returns every configured bot token, TELEGRAM_TOKEN first, without duplicates.
func (s *Settings) Tokens() []string {
	var out []string
	if s.TelegramToken != "" {
		out = append(out, s.TelegramToken)
	}
	for _, t := range s.TelegramAvailableTokens {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// AllowsToken reports whether token belongs to this deployment.
func (s *Settings) AllowsToken(token string) bool {
	return token != "" && slices.Contains(s.Tokens(), token)
}

// BotID returns the id used to partition storage per bot. It is empty when
// the deployment serves a single token.
func (s *Settings) BotID(token string) string {
	if len(s.TelegramAvailableTokens) == 0 {
		return ""
	}
	id, _, _ := strings.Cut(token, ":")
	return id
}

// AllowsChat reports whether a direct chat id is on the allow-list.
func (s *Settings) AllowsChat(chatID string) bool {
	return slices.Contains(s.ChatWhiteList, chatID)
}

// SlogLevel maps LogLevel to a slog.Level.
func (s *Settings) SlogLevel() slog.Level {
	return ParseLevel(s.LogLevel)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envInt falls back to def when the variable is not a positive integer.
func envInt(v *viper.Viper, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
