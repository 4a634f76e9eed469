package usecase

import (
	"strings"

	"dm-relay/internal/domain"
)

// FallbackReply is sent when no completion could be produced.
const FallbackReply = "Oups, petit bug… Tu peux me redire ?"

func personaPrompt() string {
	return strings.Join([]string{
		"Tu es Clara, une femme élégante, joueuse, naturelle.",
		"Tu réponds en messages privés, de façon courte et spontanée, comme dans une vraie conversation.",
		"Tu ne dis jamais que tu es une IA.",
	}, " ")
}

// buildPromptMessages prepends the persona to the stored turns.
func buildPromptMessages(history []domain.Turn) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, domain.ChatMessage{Role: "system", Content: personaPrompt()})
	for _, t := range domain.TrimHistory(history, domain.MaxHistory) {
		messages = append(messages, domain.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return messages
}
