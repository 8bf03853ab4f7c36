package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"chatgpt-telegram-relay/internal/config"
	"chatgpt-telegram-relay/internal/domain"
)

const (
	testToken  = "123456:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	otherToken = "654321:BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	testAnswer = "Hello! How can I help?"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration

	getErr    error
	putErr    error
	deleteErr error

	gets    []string
	puts    []string
	deletes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	f.gets = append(f.gets, key)
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	f.puts = append(f.puts, key)
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) touched() bool {
	return len(f.gets)+len(f.puts)+len(f.deletes) > 0
}

type fakeCompleter struct {
	answer string
	err    error
	panics bool

	calls   int
	history []domain.ChatMessage
	text    string
	extra   map[string]any
}

func (f *fakeCompleter) Complete(_ context.Context, history []domain.ChatMessage, text string, extra map[string]any) (string, error) {
	if f.panics {
		panic("completer exploded")
	}
	f.calls++
	f.history = append([]domain.ChatMessage(nil), history...)
	f.text = text
	f.extra = extra
	return f.answer, f.err
}

type sentMessage struct {
	token string
	text  string
	rc    domain.ReplyContext
}

type fakeMessenger struct {
	admins   []domain.ChatAdmin
	adminErr error
	sendErr  error

	sent         []sentMessage
	typing       []int64
	adminFetches int
}

func (f *fakeMessenger) SendMessage(_ context.Context, token, text string, rc domain.ReplyContext) error {
	f.sent = append(f.sent, sentMessage{token: token, text: text, rc: rc})
	return f.sendErr
}

func (f *fakeMessenger) SendTyping(_ context.Context, _ string, chatID int64) error {
	f.typing = append(f.typing, chatID)
	return nil
}

func (f *fakeMessenger) FetchAdministrators(_ context.Context, _ string, _ int64) ([]domain.ChatAdmin, error) {
	f.adminFetches++
	return f.admins, f.adminErr
}

func testSettings() *config.Settings {
	return &config.Settings{
		APIKey:           "sk-test",
		TelegramToken:    testToken,
		ChatWhiteList:    []string{"42"},
		BotName:          "relay_bot",
		MaxHistoryLength: 20,
		OpenAIModel:      config.DefaultOpenAIModel,
	}
}

func newTestService(t *testing.T, settings *config.Settings, store Store) (*Service, *fakeCompleter, *fakeMessenger) {
	t.Helper()
	completer := &fakeCompleter{answer: testAnswer}
	messenger := &fakeMessenger{}
	svc, err := NewService(settings, store, completer, messenger)
	require.NoError(t, err)
	return svc, completer, messenger
}

func privateUpdate(text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   10,
		From: &models.User{ID: 42},
		Chat: models.Chat{ID: 42, Type: models.ChatTypePrivate},
		Text: text,
	}}
}

func groupUpdate(senderID int64, text string, entities ...models.MessageEntity) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:       77,
		From:     &models.User{ID: senderID},
		Chat:     models.Chat{ID: -100, Type: models.ChatTypeSupergroup},
		Text:     text,
		Entities: entities,
	}}
}

func mentionEntity(offset, length int) models.MessageEntity {
	return models.MessageEntity{Type: models.MessageEntityTypeMention, Offset: offset, Length: length}
}

func commandEntity(offset, length int) models.MessageEntity {
	return models.MessageEntity{Type: models.MessageEntityTypeBotCommand, Offset: offset, Length: length}
}

func admin(id int64, status string) domain.ChatAdmin {
	var a domain.ChatAdmin
	a.User.ID = id
	a.Status = status
	return a
}

func storedHistory(t *testing.T, store *fakeStore, key string) []domain.ChatMessage {
	t.Helper()
	raw, ok := store.data[key]
	require.True(t, ok, "no history stored under %s", key)
	var history []domain.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &history))
	return history
}

func putHistory(t *testing.T, store *fakeStore, key string, history []domain.ChatMessage) {
	t.Helper()
	blob, err := json.Marshal(history)
	require.NoError(t, err)
	store.data[key] = string(blob)
}
