package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type command struct {
	name string
	help string
	run  func(ctx context.Context, st *State, arg string) Outcome
}

func (s *Service) commandTable() []command {
	return []command{
		{name: "/help", help: "show this help", run: s.commandHelp},
		{name: "/new", help: "start a new conversation", run: s.commandNewConversation},
		{name: "/start", help: "show your ID and start a new conversation", run: s.commandNewConversation},
		{name: "/setenv", help: "change a user setting, usage: /setenv KEY=VALUE", run: s.commandSetEnv},
	}
}

// routeCommand dispatches text that is a registered command, alone or
// followed by a space and arguments.
func (s *Service) routeCommand(ctx context.Context, st *State) Outcome {
	for _, c := range s.commands {
		if st.Text == c.name || strings.HasPrefix(st.Text, c.name+" ") {
			return c.run(ctx, st, strings.TrimSpace(st.Text[len(c.name):]))
		}
	}
	return Continue()
}

func (s *Service) commandHelp(context.Context, *State, string) Outcome {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, c := range s.commands {
		fmt.Fprintf(&b, "\n%s: %s", c.name, c.help)
	}
	return reply(b.String())
}

func (s *Service) commandNewConversation(ctx context.Context, st *State, _ string) Outcome {
	if err := s.store.Delete(ctx, st.Identity.HistoryKey()); err != nil {
		e := newError(ErrorCollaborator, "delete_history", err)
		s.logger(ctx).Error("reset conversation failed", "key", st.Identity.HistoryKey(), "err", e)
		return reply(e.Message())
	}
	if st.Identity.Group {
		return reply(fmt.Sprintf("A new conversation has started. Group ID (%d), your ID (%d).", st.Identity.ChatID, st.SenderID))
	}
	return reply(fmt.Sprintf("A new conversation has started. Your ID (%d).", st.Identity.ChatID))
}

func (s *Service) commandSetEnv(ctx context.Context, st *State, arg string) Outcome {
	if st.Identity.Group {
		role, err := s.chatRole(ctx, st, st.SenderID)
		if err != nil {
			s.logger(ctx).Warn("resolve chat role failed", "chat_id", st.Identity.ChatID, "err", err)
			return reply("Could not verify your permissions in this group.")
		}
		if role != RoleAdministrator && role != RoleCreator {
			return reply("Only group administrators can change settings.")
		}
	}

	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return reply("Invalid format, usage: /setenv KEY=VALUE")
	}
	if err := st.Config.Set(strings.TrimSpace(key), value); err != nil {
		s.logger(ctx).Info("rejected setting", "err", newError(ErrorMalformed, "setenv", err))
		return reply("Invalid setting: " + err.Error())
	}

	blob, err := json.Marshal(st.Config)
	if err != nil {
		return reply(newError(ErrorCollaborator, "encode_user_config", err).Message())
	}
	if err := s.store.Put(ctx, st.Identity.ConfigKey(), string(blob), 0); err != nil {
		e := newError(ErrorCollaborator, "store_user_config", err)
		s.logger(ctx).Error("save user config failed", "key", st.Identity.ConfigKey(), "err", e)
		return reply(e.Message())
	}
	return reply("Settings updated.")
}
