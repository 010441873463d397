package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/hyperjump/docuchat/internal/models"
)

func text(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	tp, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return tp.Text
}

func TestBuildMessages(t *testing.T) {
	req := Request{
		System: "Be brief.",
		History: []models.Turn{
			{Role: models.RoleUser, Content: "total?"},
			{Role: models.RoleAssistant, Content: "42"},
		},
		Grounding: []models.ScoredChunk{
			{Chunk: models.Chunk{Text: "Total due: 42 EUR", Source: models.ChunkSource{Name: "invoice.pdf"}}},
		},
		Query: "and the currency?",
	}
	msgs := BuildMessages(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	sys := text(t, msgs[0])
	assert.Contains(t, sys, "Be brief.")
	assert.Contains(t, sys, "[1] (invoice.pdf)\nTotal due: 42 EUR")
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
	assert.Equal(t, "and the currency?", text(t, msgs[3]))
}

func TestBuildMessages_noSystemNoGrounding(t *testing.T) {
	msgs := BuildMessages(Request{Query: "hi"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", text(t, msgs[0]))
}

func TestCondenseMessages(t *testing.T) {
	msgs := CondenseMessages([]models.Turn{
		{Role: models.RoleUser, Content: "What is the total?"},
		{Role: models.RoleAssistant, Content: "42"},
	}, "and the currency?")
	require.Len(t, msgs, 2)
	user := text(t, msgs[1])
	assert.Contains(t, user, "User: What is the total?\nAssistant: 42")
	assert.Contains(t, user, "Follow-up question: and the currency?")
}

func TestLastTurns(t *testing.T) {
	turns := []models.Turn{{Content: "1"}, {Content: "2"}, {Content: "3"}}
	assert.Equal(t, turns[1:], LastTurns(turns, 2))
	assert.Equal(t, turns, LastTurns(turns, 0))
	assert.Equal(t, turns, LastTurns(turns, 5))
}
