package generation

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/hyperjump/docuchat/internal/models"
)

const groundingHeader = "Answer using the following excerpts from the user's documents. " +
	"If they do not contain the answer, say that you don't know."

const condenseInstruction = "Rewrite the follow-up question as a single standalone question that can be " +
	"understood without the conversation, in the same language. Reply with the question only."

// FormatGrounding renders retrieved chunks as numbered excerpts labelled with their source file.
func FormatGrounding(chunks []models.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s", i+1, c.Chunk.Source.Name, c.Chunk.Text)
	}
	return b.String()
}

// FormatHistory renders turns as "User: ..." / "Assistant: ..." lines.
func FormatHistory(turns []models.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := "User"
		if t.Role == models.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, role+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func roleMessage(t models.Turn) llms.MessageContent {
	role := llms.ChatMessageTypeHuman
	if t.Role == models.RoleAssistant {
		role = llms.ChatMessageTypeAI
	}
	return llms.TextParts(role, t.Content)
}

// BuildMessages lays out a chat request: system prompt with the grounding excerpts, prior turns
// in order, then the question.
func BuildMessages(req Request) []llms.MessageContent {
	system := strings.TrimSpace(req.System)
	if g := FormatGrounding(req.Grounding); g != "" {
		if system != "" {
			system += "\n\n"
		}
		system += groundingHeader + "\n\n" + g
	}

	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, t := range req.History {
		msgs = append(msgs, roleMessage(t))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Query))
	return msgs
}

// CondenseMessages asks for a standalone rewrite of question given history.
func CondenseMessages(history []models.Turn, question string) []llms.MessageContent {
	user := "Conversation:\n" + FormatHistory(history) + "\n\nFollow-up question: " + question
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, condenseInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
}
