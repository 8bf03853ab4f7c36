// Package usecase implements the inbound update pipeline: an ordered chain of
// steps that resolve the conversation, guard access, strip group mentions,
// route commands and finally relay the message to the completion API.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot/models"

	"chatgpt-telegram-relay/internal/config"
	"chatgpt-telegram-relay/internal/domain"
)

const notHandled = "NOT HANDLED"

// Store is the key-value capability backing transcripts and configuration.
// A zero ttl stores the value without expiration.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Completer interface {
	Complete(ctx context.Context, history []domain.ChatMessage, text string, extra map[string]any) (string, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, token, text string, rc domain.ReplyContext) error
	SendTyping(ctx context.Context, token string, chatID int64) error
	FetchAdministrators(ctx context.Context, token string, chatID int64) ([]domain.ChatAdmin, error)
}

// Response is the final result of one update. Deliver marks responses that
// are also sent to the chat; the others are only acknowledgements.
type Response struct {
	Text    string
	Deliver bool
}

// Outcome is what a step returns: either continue with the next step or stop
// with a response.
type Outcome struct {
	terminal bool
	resp     Response
}

func Continue() Outcome { return Outcome{} }

func Terminate(resp Response) Outcome { return Outcome{terminal: true, resp: resp} }

func reply(text string) Outcome { return Terminate(Response{Text: text, Deliver: true}) }

func noop(text string) Outcome { return Terminate(Response{Text: text}) }

// Terminal reports whether o stops the pipeline.
func (o Outcome) Terminal() bool { return o.terminal }

// Response returns the response of a terminal outcome.
func (o Outcome) Response() Response { return o.resp }

// State is built fresh for every update and threaded through the steps.
type State struct {
	Token    string
	Message  *models.Message
	Text     string
	SenderID int64
	Identity domain.Identity
	Config   UserConfig
	Reply    domain.ReplyContext
}

type step struct {
	name string
	run  func(ctx context.Context, st *State) Outcome
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

type Service struct {
	settings  *config.Settings
	store     Store
	completer Completer
	messenger Messenger
	log       *slog.Logger

	steps    []step
	commands []command
}

// NewService wires the pipeline. store may be nil; the readiness step then
// answers every message with a configuration notice.
func NewService(settings *config.Settings, store Store, completer Completer, messenger Messenger, opts ...Option) (*Service, error) {
	if settings == nil {
		return nil, errors.New("usecase: settings must not be nil")
	}
	if completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	s := &Service{
		settings:  settings,
		store:     store,
		completer: completer,
		messenger: messenger,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.commands = s.commandTable()
	s.steps = []step{
		{name: "token", run: s.checkToken},
		{name: "context", run: s.resolveContext},
		{name: "readiness", run: s.checkReadiness},
		{name: "allow_list", run: s.checkAllowList},
		{name: "mention", run: s.extractMention},
		{name: "non_text", run: s.filterNonText},
		{name: "command", run: s.routeCommand},
		{name: "chat", run: s.chat},
	}
	return s, nil
}

// Process runs update through the pipeline and returns the first terminal
// response. It never fails: every error ends up as response text.
func (s *Service) Process(ctx context.Context, token string, update *models.Update) Response {
	st := &State{Token: token}
	if update != nil {
		st.Message = update.Message
	}
	log := s.logger(ctx)

	for _, stp := range s.steps {
		out := s.runStep(ctx, stp, st)
		if !out.terminal {
			continue
		}
		log.Debug("pipeline terminated", "step", stp.name, "chat_id", st.Reply.ChatID, "deliver", out.resp.Deliver)
		if out.resp.Deliver && st.Reply.ChatID != 0 {
			if err := s.messenger.SendMessage(ctx, token, out.resp.Text, st.Reply); err != nil {
				log.Error("send reply failed", "chat_id", st.Reply.ChatID, "err", err)
			}
		}
		return out.resp
	}
	return Response{Text: notHandled}
}

// runStep isolates a panicking step so the remaining steps still run.
func (s *Service) runStep(ctx context.Context, stp step, st *State) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger(ctx).Error("pipeline step panicked", "step", stp.name, "err", fmt.Errorf("panic: %v", r))
			out = Continue()
		}
	}()
	return stp.run(ctx, st)
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	if id := CorrelationID(ctx); id != "" {
		return s.log.With("correlation_id", id)
	}
	return s.log
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying the request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
