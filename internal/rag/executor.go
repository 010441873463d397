// Package rag answers questions over a user's documents with conversation memory.
package rag

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/embedding"
	"github.com/hyperjump/docuchat/internal/fileid"
	"github.com/hyperjump/docuchat/internal/generation"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/session"
	"github.com/hyperjump/docuchat/internal/vector"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Executor runs retrieval-augmented queries. One query per conversation runs at a time;
// queries on different conversations run concurrently.
type Executor struct {
	index     *vector.Manager
	embedder  embedding.Embedder
	generator generation.Generator
	sessions  *session.Store

	search          vector.SearchOptions
	systemPrompt    string
	historyTurns    int
	condense        bool
	embedTimeout    time.Duration
	generateTimeout time.Duration
	logger          *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithSearchOptions sets the retrieval strategy and its parameters.
func WithSearchOptions(o vector.SearchOptions) Option {
	return func(e *Executor) { e.search = o }
}

// WithSystemPrompt sets the instruction sent ahead of every answer.
func WithSystemPrompt(p string) Option {
	return func(e *Executor) { e.systemPrompt = p }
}

// WithHistoryTurns limits how many prior turns are sent to the generator. Zero sends all.
func WithHistoryTurns(n int) Option {
	return func(e *Executor) { e.historyTurns = n }
}

// WithCondenseQuestion toggles rewriting follow-ups into standalone questions for retrieval.
func WithCondenseQuestion(on bool) Option {
	return func(e *Executor) { e.condense = on }
}

// WithTimeouts bounds the query embedding and each generator call. Zero means no deadline.
func WithTimeouts(embed, generate time.Duration) Option {
	return func(e *Executor) {
		e.embedTimeout = embed
		e.generateTimeout = generate
	}
}

// NewExecutor creates an executor.
func NewExecutor(index *vector.Manager, embedder embedding.Embedder, generator generation.Generator, sessions *session.Store, opts ...Option) *Executor {
	e := &Executor{
		index:     index,
		embedder:  embedder,
		generator: generator,
		sessions:  sessions,
		search:    vector.DefaultSearchOptions(),
		condense:  true,
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SessionKey is the session store key of a conversation. Conversations are scoped to their owner,
// so a conversation id presented by another owner starts a separate history.
func SessionKey(ownerID, conversationID string) string {
	return ownerID + "\x00" + conversationID
}

// Query answers text for ownerID within conversationID. An empty conversation id starts a new
// conversation; its id is returned in the answer. The exchange is recorded only when an answer
// was generated.
func (e *Executor) Query(ctx context.Context, ownerID, conversationID, text string) (*models.Answer, error) {
	ownerID, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return nil, apperr.New(apperr.KindClientInput, "query", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Newf(apperr.KindClientInput, "query", "query is required")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	coll, err := e.index.GetOrCreateCollection(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	lease, err := e.sessions.Acquire(ctx, SessionKey(ownerID, conversationID))
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "acquire conversation", err)
	}
	defer lease.Release()

	history := generation.LastTurns(lease.History(), e.historyTurns)
	log := e.logger.With(zap.String("owner_id", ownerID), zap.String("conversation_id", conversationID))

	question, err := e.standalone(ctx, history, text)
	if err != nil {
		return nil, err
	}
	hits, err := e.retrieve(ctx, coll, question)
	if err != nil {
		return nil, err
	}
	log.Debug("retrieved", zap.String("question", question), zap.Int("hits", len(hits)))

	genCtx, cancel := withTimeout(ctx, e.generateTimeout)
	defer cancel()
	content, err := e.generator.Complete(genCtx, generation.Request{
		System:    e.systemPrompt,
		History:   history,
		Grounding: hits,
		Query:     text,
	})
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return nil, apperr.New(apperr.KindGeneration, "generate answer", err)
	}

	lease.Append(text, content)
	return &models.Answer{ConversationID: conversationID, Content: content, Sources: hits}, nil
}

// standalone rewrites a follow-up into a question retrieval can use on its own. Without history
// or with condensing off the question is used as asked.
func (e *Executor) standalone(ctx context.Context, history []models.Turn, text string) (string, error) {
	if !e.condense || len(history) == 0 {
		return text, nil
	}
	ctx, cancel := withTimeout(ctx, e.generateTimeout)
	defer cancel()
	q, err := e.generator.Condense(ctx, history, text)
	if err != nil {
		return "", apperr.New(apperr.KindGeneration, "condense question", err)
	}
	if q = strings.TrimSpace(q); q == "" {
		return text, nil
	}
	return q, nil
}

func (e *Executor) retrieve(ctx context.Context, coll *vector.Collection, question string) ([]models.ScoredChunk, error) {
	embedCtx, cancel := withTimeout(ctx, e.embedTimeout)
	defer cancel()
	vec, err := e.embedder.Embed(embedCtx, question)
	if err != nil {
		return nil, apperr.New(apperr.KindIndexUnavailable, "embed query", err)
	}
	opts := e.search
	opts.QueryText = question
	return e.index.Search(ctx, coll, vec, opts)
}
