package prompt

import (
	"policy-rag/internal/models"
)

// BuildPrompt wraps an assembled context body with the instruction header,
// the output format footer and the disclaimer.
func BuildPrompt(body string) string {
	return models.ContextHeader + "```" + body + "```" + "\n" + models.ContextFooter + models.Disclaimer
}

// Preamble returns the fixed system messages that open every request.
func Preamble() []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: models.SystemPrompt},
		{Role: models.RoleSystem, Content: models.TerminologyPrompt},
	}
}

// Turn returns the two user messages a new question adds to a conversation:
// the bare question followed by the full prompt built from pc.
func Turn(question string, pc models.PromptContext) []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: question},
		{Role: models.RoleUser, Content: BuildPrompt(pc.Body)},
	}
}

// BuildMessages returns the message sequence for one completion call:
// the preamble, the conversation so far, then the new turn. conversation is
// not modified.
func BuildMessages(conversation []models.Message, question string, pc models.PromptContext) []models.Message {
	msgs := make([]models.Message, 0, len(conversation)+4)
	msgs = append(msgs, Preamble()...)
	msgs = append(msgs, conversation...)
	msgs = append(msgs, Turn(question, pc)...)
	return msgs
}
