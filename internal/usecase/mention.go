package usecase

import (
	"context"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// extractMention drops group messages that do not address the bot and strips
// the address from the ones that do.
func (s *Service) extractMention(_ context.Context, st *State) Outcome {
	if !st.Identity.Group || s.settings.BotName == "" {
		return Continue()
	}
	if st.Text == "" {
		return noop("NON TEXT MESSAGE")
	}
	text, addressed := stripMention(st.Text, st.Message.Entities, s.settings.BotName)
	if !addressed {
		return noop("NOT MENTIONED")
	}
	st.Text = text
	return Continue()
}

// stripMention rebuilds text without mention spans and with the bot name
// removed from command spans. Entity offsets count UTF-16 code units.
func stripMention(text string, entities []models.MessageEntity, name string) (string, bool) {
	units := utf16.Encode([]rune(text))
	span := func(from, to int) string {
		from = clampIndex(from, len(units))
		to = clampIndex(to, len(units))
		if from >= to {
			return ""
		}
		return string(utf16.Decode(units[from:to]))
	}

	var (
		b         strings.Builder
		offset    int
		addressed bool
	)
	for _, e := range entities {
		start, end := e.Offset, e.Offset+e.Length
		switch e.Type {
		case models.MessageEntityTypeBotCommand:
			cmd := span(start, end)
			if strings.HasSuffix(cmd, name) {
				addressed = true
			}
			cmd = strings.ReplaceAll(cmd, "@"+name, "")
			cmd = strings.ReplaceAll(cmd, name, "")
			b.WriteString(span(offset, start))
			b.WriteString(strings.TrimSpace(cmd))
		case models.MessageEntityTypeMention, models.MessageEntityTypeTextMention:
			m := span(start, end)
			if m == name || m == "@"+name {
				addressed = true
			}
			b.WriteString(span(offset, start))
		default:
			continue
		}
		if end > offset {
			offset = end
		}
	}
	b.WriteString(span(offset, len(units)))
	return strings.TrimSpace(b.String()), addressed
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
