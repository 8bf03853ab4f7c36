package usecase

import (
	"context"
	"encoding/json"
	"unicode/utf16"

	"chatgpt-telegram-relay/internal/domain"
)

// maxTokenLength bounds the approximate size of the transcript sent upstream.
const maxTokenLength = 4000

// chat relays the message with its trimmed transcript to the completer and
// appends the exchange to the stored transcript.
func (s *Service) chat(ctx context.Context, st *State) Outcome {
	log := s.logger(ctx)
	if err := s.messenger.SendTyping(ctx, st.Token, st.Identity.ChatID); err != nil {
		log.Debug("send typing failed", "chat_id", st.Identity.ChatID, "err", err)
	}

	history, err := s.loadHistory(ctx, st)
	if err != nil {
		e := newError(ErrorCollaborator, "load_history", err)
		log.Error("load history failed", "key", st.Identity.HistoryKey(), "err", e)
		return reply(e.Message())
	}

	prompt := trimByBudget(trimByCount(history, s.settings.MaxHistoryLength), maxTokenLength)
	answer, err := s.completer.Complete(ctx, prompt, st.Text, st.Config.ExtraParams())
	if err != nil {
		e := newError(ErrorCollaborator, "completion", err)
		if status, ok := upstreamStatusCode(err); ok {
			log.Error("completion failed", "status", status, "err", e)
		} else {
			log.Error("completion failed", "err", e)
		}
		return reply(e.Message())
	}

	history = append(history,
		domain.ChatMessage{Role: domain.RoleUser, Content: st.Text},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: answer},
	)
	blob, err := json.Marshal(history)
	if err != nil {
		return reply(newError(ErrorCollaborator, "encode_history", err).Message())
	}
	if err := s.store.Put(ctx, st.Identity.HistoryKey(), string(blob), 0); err != nil {
		e := newError(ErrorCollaborator, "store_history", err)
		log.Error("save history failed", "key", st.Identity.HistoryKey(), "err", e)
		return reply(e.Message())
	}
	return reply(answer)
}

// loadHistory returns the stored transcript, or a single system turn when
// nothing usable is stored.
func (s *Service) loadHistory(ctx context.Context, st *State) ([]domain.ChatMessage, error) {
	fresh := []domain.ChatMessage{{Role: domain.RoleSystem, Content: st.Config.SystemInitMessage()}}
	raw, ok, err := s.store.Get(ctx, st.Identity.HistoryKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return fresh, nil
	}
	var history []domain.ChatMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil || len(history) == 0 {
		return fresh, nil
	}
	return history, nil
}

// trimByCount keeps the first turn and the most recent limit-2 turns once the
// transcript is longer than limit.
func trimByCount(history []domain.ChatMessage, limit int) []domain.ChatMessage {
	if len(history) <= limit || limit < 3 {
		return history
	}
	keep := limit - 2
	out := make([]domain.ChatMessage, 0, keep+1)
	out = append(out, history[0])
	return append(out, history[len(history)-keep:]...)
}

// trimByBudget walks backwards and drops every turn older than the one at
// which the running cost first exceeds budget.
func trimByBudget(history []domain.ChatMessage, budget int) []domain.ChatMessage {
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += tokenCost(history[i].Content)
		if total > budget {
			return history[i:]
		}
	}
	return history
}

// tokenCost approximates tokens as UTF-16 length plus one per CJK ideograph.
func tokenCost(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
		if r >= 0x4e00 && r <= 0x9fa5 {
			n++
		}
	}
	return n
}
