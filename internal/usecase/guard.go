package usecase

import (
	"context"
	"fmt"
	"strconv"
)

func (s *Service) checkReadiness(ctx context.Context, _ *State) Outcome {
	var missing string
	switch {
	case s.settings.APIKey == "":
		missing = "API_KEY"
	case s.store == nil:
		missing = "STATE_TABLE"
	default:
		return Continue()
	}
	s.logger(ctx).Error("service not configured", "err", newError(ErrorConfiguration, "missing_"+missing, nil))
	return reply(fmt.Sprintf("Service not configured: %s is not set.", missing))
}

// checkAllowList applies to direct chats only; group membership is trusted.
func (s *Service) checkAllowList(ctx context.Context, st *State) Outcome {
	if st.Identity.Group || s.settings.GenerousMode {
		return Continue()
	}
	chatID := strconv.FormatInt(st.Identity.ChatID, 10)
	if s.settings.AllowsChat(chatID) {
		return Continue()
	}
	s.logger(ctx).Info("request rejected", "chat_id", chatID, "err", newError(ErrorUnauthorized, "chat_not_allowed", nil))
	return reply(fmt.Sprintf("You are not allowed to use this bot. Ask the administrator to add your ID (%s) to the allow-list.", chatID))
}

func (s *Service) filterNonText(_ context.Context, st *State) Outcome {
	if st.Text == "" {
		return reply("Non-text messages are not supported yet.")
	}
	return Continue()
}
