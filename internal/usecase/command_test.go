package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"chatgpt-telegram-relay/internal/domain"
)

func TestProcess_Help(t *testing.T) {
	svc, completer, _ := newTestService(t, testSettings(), newFakeStore())

	resp := svc.Process(context.Background(), testToken, privateUpdate("/help"))

	require.True(t, resp.Deliver)
	for _, name := range []string{"/help", "/new", "/start", "/setenv"} {
		require.Contains(t, resp.Text, name)
	}
	require.Zero(t, completer.calls)
}

func TestProcess_NewConversation(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{name: "new", text: "/new"},
		{name: "start", text: "/start"},
		{name: "with trailing argument", text: "/new please"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.data["history:42"] = `[{"role":"system","content":"old"}]`
			svc, completer, _ := newTestService(t, testSettings(), store)

			resp := svc.Process(context.Background(), testToken, privateUpdate(tc.text))

			require.Equal(t, "A new conversation has started. Your ID (42).", resp.Text)
			require.NotContains(t, store.data, "history:42")
			require.Zero(t, completer.calls)
		})
	}
}

func TestProcess_NewConversationInGroupEchoesIDs(t *testing.T) {
	settings := testSettings()
	settings.BotName = ""
	svc, _, _ := newTestService(t, settings, newFakeStore())

	resp := svc.Process(context.Background(), testToken, groupUpdate(7, "/new"))

	require.Equal(t, "A new conversation has started. Group ID (-100), your ID (7).", resp.Text)
}

func TestProcess_NewConversationStorageError(t *testing.T) {
	store := newFakeStore()
	store.deleteErr = errors.New("table unavailable")
	svc, _, _ := newTestService(t, testSettings(), store)

	resp := svc.Process(context.Background(), testToken, privateUpdate("/new"))

	require.Equal(t, "ERROR: table unavailable", resp.Text)
	require.True(t, resp.Deliver)
}

func TestProcess_ResetThenChatStartsFresh(t *testing.T) {
	store := newFakeStore()
	putHistory(t, store, "history:42", []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: DefaultSystemInitMessage},
		{Role: domain.RoleUser, Content: "old question"},
		{Role: domain.RoleAssistant, Content: "old answer"},
	})
	svc, completer, _ := newTestService(t, testSettings(), store)

	svc.Process(context.Background(), testToken, privateUpdate("/new"))
	resp := svc.Process(context.Background(), testToken, privateUpdate("hi"))

	require.Equal(t, testAnswer, resp.Text)
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleSystem, Content: DefaultSystemInitMessage}}, completer.history)
}

func TestProcess_CommandPrefixMustBeFollowedBySpace(t *testing.T) {
	store := newFakeStore()
	svc, completer, _ := newTestService(t, testSettings(), store)

	resp := svc.Process(context.Background(), testToken, privateUpdate("/newest"))

	require.Equal(t, testAnswer, resp.Text)
	require.Equal(t, "/newest", completer.text)
	require.Empty(t, store.deletes)
}

func TestProcess_SetEnv(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		reply   string
		stored  bool
		wantCfg map[string]any
	}{
		{
			name:   "system prompt",
			text:   "/setenv SYSTEM_INIT_MESSAGE=hi",
			reply:  "Settings updated.",
			stored: true,
			wantCfg: map[string]any{
				KeySystemInitMessage: "hi",
				KeyExtraParams:       map[string]any{},
			},
		},
		{
			name:   "extra params",
			text:   `/setenv OPENAI_API_EXTRA_PARAMS={"temperature":0.2}`,
			reply:  "Settings updated.",
			stored: true,
			wantCfg: map[string]any{
				KeySystemInitMessage: DefaultSystemInitMessage,
				KeyExtraParams:       map[string]any{"temperature": 0.2},
			},
		},
		{name: "unknown key", text: "/setenv UNKNOWN=1", reply: "Invalid setting: unsupported configuration key \"UNKNOWN\""},
		{name: "bad json", text: "/setenv OPENAI_API_EXTRA_PARAMS={nope", reply: "Invalid setting: OPENAI_API_EXTRA_PARAMS expects a JSON object"},
		{name: "missing separator", text: "/setenv SYSTEM_INIT_MESSAGE", reply: "Invalid format, usage: /setenv KEY=VALUE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc, completer, _ := newTestService(t, testSettings(), store)

			resp := svc.Process(context.Background(), testToken, privateUpdate(tc.text))

			require.True(t, resp.Deliver)
			require.Contains(t, resp.Text, tc.reply)
			require.Zero(t, completer.calls)
			raw, ok := store.data["user_config:42"]
			require.Equal(t, tc.stored, ok)
			if tc.stored {
				var got map[string]any
				require.NoError(t, json.Unmarshal([]byte(raw), &got))
				require.Equal(t, tc.wantCfg, got)
				require.Zero(t, store.ttls["user_config:42"])
			}
		})
	}
}

func TestProcess_SetEnvStorageError(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("throttled")
	svc, _, _ := newTestService(t, testSettings(), store)

	resp := svc.Process(context.Background(), testToken, privateUpdate("/setenv SYSTEM_INIT_MESSAGE=hi"))

	require.Equal(t, "ERROR: throttled", resp.Text)
}

func TestProcess_SetEnvGroupRoleGate(t *testing.T) {
	const cmd = "/setenv SYSTEM_INIT_MESSAGE=hi"

	t.Run("member is rejected", func(t *testing.T) {
		settings := testSettings()
		settings.BotName = ""
		store := newFakeStore()
		svc, _, messenger := newTestService(t, settings, store)
		messenger.admins = []domain.ChatAdmin{admin(1, RoleCreator), admin(2, RoleAdministrator)}

		resp := svc.Process(context.Background(), testToken, groupUpdate(7, cmd))

		require.Equal(t, "Only group administrators can change settings.", resp.Text)
		require.NotContains(t, store.data, "user_config:-100")
		require.Contains(t, store.data, "group_admin:-100")
		require.Equal(t, groupAdminTTL, store.ttls["group_admin:-100"])
		require.Equal(t, 1, messenger.adminFetches)
	})
	t.Run("administrator is allowed from cache", func(t *testing.T) {
		settings := testSettings()
		settings.BotName = ""
		store := newFakeStore()
		store.data["group_admin:-100"] = `[{"user":{"id":7},"status":"administrator"}]`
		svc, _, messenger := newTestService(t, settings, store)

		resp := svc.Process(context.Background(), testToken, groupUpdate(7, cmd))

		require.Equal(t, "Settings updated.", resp.Text)
		require.Contains(t, store.data, "user_config:-100")
		require.Zero(t, messenger.adminFetches)
	})
	t.Run("creator is allowed after fetch", func(t *testing.T) {
		settings := testSettings()
		settings.BotName = ""
		store := newFakeStore()
		store.data["group_admin:-100"] = `garbage`
		svc, _, messenger := newTestService(t, settings, store)
		messenger.admins = []domain.ChatAdmin{admin(7, RoleCreator)}

		resp := svc.Process(context.Background(), testToken, groupUpdate(7, cmd))

		require.Equal(t, "Settings updated.", resp.Text)
		require.Equal(t, 1, messenger.adminFetches)
	})
	t.Run("fetch failure rejects", func(t *testing.T) {
		settings := testSettings()
		settings.BotName = ""
		store := newFakeStore()
		svc, _, messenger := newTestService(t, settings, store)
		messenger.adminErr = errors.New("chat not found")

		resp := svc.Process(context.Background(), testToken, groupUpdate(7, cmd))

		require.Equal(t, "Could not verify your permissions in this group.", resp.Text)
		require.NotContains(t, store.data, "user_config:-100")
		require.NotContains(t, store.data, "group_admin:-100")
	})
}
