// Package generation turns a question, its conversation history and retrieved chunks into an
// answer using a chat-completion model.
package generation

import (
	"context"
	"errors"

	"github.com/hyperjump/docuchat/internal/models"
)

// ErrEmptyCompletion is returned when the model produced no choices.
var ErrEmptyCompletion = errors.New("model returned no completion")

// Request is everything one answer is generated from.
type Request struct {
	System    string
	History   []models.Turn
	Grounding []models.ScoredChunk
	Query     string
}

// Generator is the generation capability.
type Generator interface {
	// Complete answers req.Query.
	Complete(ctx context.Context, req Request) (string, error)
	// Condense rewrites a follow-up question into a standalone question using the history.
	Condense(ctx context.Context, history []models.Turn, question string) (string, error)
}

// LastTurns returns at most n trailing turns. n <= 0 keeps everything.
func LastTurns(turns []models.Turn, n int) []models.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
