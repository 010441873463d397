package rag

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/embedding"
	"github.com/hyperjump/docuchat/internal/generation"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/session"
	"github.com/hyperjump/docuchat/internal/vector"
)

type recordingGenerator struct {
	mu        sync.Mutex
	requests  []generation.Request
	condensed []string
	rewrite   string
	err       error
	delay     time.Duration
}

func (g *recordingGenerator) Complete(_ context.Context, req generation.Request) (string, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return "answer to " + req.Query, nil
}

func (g *recordingGenerator) Condense(_ context.Context, _ []models.Turn, question string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.condensed = append(g.condensed, question)
	if g.rewrite != "" {
		return g.rewrite, nil
	}
	return question, nil
}

type recordingEmbedder struct {
	*embedding.MockEmbedder
	mu    sync.Mutex
	texts []string
}

func (e *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	return e.MockEmbedder.Embed(ctx, text)
}

type fixture struct {
	exec     *Executor
	manager  *vector.Manager
	embedder *recordingEmbedder
	gen      *recordingGenerator
	sessions *session.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := vector.NewMemoryStore(256)
	require.NoError(t, err)
	f := &fixture{
		manager:  vector.NewManager(store, 256),
		embedder: &recordingEmbedder{MockEmbedder: embedding.NewMockEmbedder(256)},
		gen:      &recordingGenerator{},
		sessions: session.NewStore(),
	}
	f.exec = NewExecutor(f.manager, f.embedder, f.gen, f.sessions, opts...)
	return f
}

func (f *fixture) index(t *testing.T, owner string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	coll, err := f.manager.GetOrCreateCollection(ctx, owner)
	require.NoError(t, err)
	var chunks []models.EmbeddedChunk
	for i, txt := range texts {
		vec, err := f.embedder.MockEmbedder.Embed(ctx, txt)
		require.NoError(t, err)
		chunks = append(chunks, models.EmbeddedChunk{Vector: vec, Chunk: models.Chunk{
			ID:     owner + "-" + string(rune('a'+i)),
			Text:   txt,
			Index:  i,
			Source: models.ChunkSource{Name: "doc.txt", OwnerID: owner, FileID: "f1"},
		}})
	}
	require.NoError(t, f.manager.Add(ctx, coll, chunks))
}

func TestQuery_newOwnerWithoutDocuments(t *testing.T) {
	f := newFixture(t)
	ans, err := f.exec.Query(context.Background(), "fresh-user", "c1", "hello?")
	require.NoError(t, err)
	assert.Equal(t, "answer to hello?", ans.Content)
	assert.Equal(t, "c1", ans.ConversationID)
	assert.Empty(t, ans.Sources)
	require.Len(t, f.gen.requests, 1)
	assert.Empty(t, f.gen.requests[0].Grounding)
}

func TestQuery_groundsOnOwnersChunksOnly(t *testing.T) {
	f := newFixture(t)
	f.index(t, "alice", "the invoice total is 42 EUR", "the weather was sunny")
	f.index(t, "bob", "bob secret invoice total 99 USD")

	ans, err := f.exec.Query(context.Background(), "alice", "c1", "invoice total")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)
	for _, s := range ans.Sources {
		assert.Equal(t, "alice", s.Chunk.Source.OwnerID)
	}
	assert.Equal(t, "the invoice total is 42 EUR", ans.Sources[0].Chunk.Text)
}

func TestQuery_recordsHistoryOnSuccess(t *testing.T) {
	f := newFixture(t, WithSystemPrompt("sys"))
	ctx := context.Background()
	_, err := f.exec.Query(ctx, "u1", "c1", "first")
	require.NoError(t, err)
	_, err = f.exec.Query(ctx, "u1", "c1", "second")
	require.NoError(t, err)

	turns := f.sessions.GetOrCreate(SessionKey("u1", "c1")).Turns
	require.Len(t, turns, 4)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "first"}, turns[0])
	assert.Equal(t, models.Turn{Role: models.RoleAssistant, Content: "answer to first"}, turns[1])

	require.Len(t, f.gen.requests, 2)
	assert.Equal(t, "sys", f.gen.requests[1].System)
	assert.Len(t, f.gen.requests[1].History, 2)
}

func TestQuery_generationFailureLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("model overloaded")
	_, err := f.exec.Query(context.Background(), "u1", "c1", "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrGeneration))
	assert.Equal(t, 502, apperr.HTTPStatus(err))
	assert.Empty(t, f.sessions.GetOrCreate(SessionKey("u1", "c1")).Turns)
}

func TestQuery_condensedQuestionUsedForRetrievalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.exec.Query(ctx, "u1", "c1", "What is the invoice total?")
	require.NoError(t, err)
	assert.Empty(t, f.gen.condensed, "no history, nothing to condense")

	f.gen.rewrite = "What is the currency of the invoice total?"
	_, err = f.exec.Query(ctx, "u1", "c1", "and the currency?")
	require.NoError(t, err)

	assert.Equal(t, []string{"and the currency?"}, f.gen.condensed)
	assert.Equal(t, "What is the currency of the invoice total?", f.embedder.texts[len(f.embedder.texts)-1])
	assert.Equal(t, "and the currency?", f.gen.requests[1].Query)
}

func TestQuery_condenseDisabled(t *testing.T) {
	f := newFixture(t, WithCondenseQuestion(false))
	ctx := context.Background()
	_, _ = f.exec.Query(ctx, "u1", "c1", "one")
	_, err := f.exec.Query(ctx, "u1", "c1", "two")
	require.NoError(t, err)
	assert.Empty(t, f.gen.condensed)
	assert.Equal(t, "two", f.embedder.texts[len(f.embedder.texts)-1])
}

func TestQuery_historyWindow(t *testing.T) {
	f := newFixture(t, WithHistoryTurns(2), WithCondenseQuestion(false))
	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_, err := f.exec.Query(ctx, "u1", "c1", q)
		require.NoError(t, err)
	}
	last := f.gen.requests[2].History
	require.Len(t, last, 2)
	assert.Equal(t, "two", last[0].Content)
}

func TestQuery_validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.exec.Query(ctx, "", "c1", "q")
	assert.True(t, errors.Is(err, apperr.ErrClientInput))
	_, err = f.exec.Query(ctx, "u1", "c1", "  ")
	assert.True(t, errors.Is(err, apperr.ErrClientInput))
	for _, owner := range []string{"..", "a/../..", `a\b`} {
		_, err = f.exec.Query(ctx, owner, "c1", "q")
		assert.True(t, errors.Is(err, apperr.ErrClientInput), "owner %q", owner)
	}
	assert.Empty(t, f.gen.requests)
	st, err := f.manager.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Collections, "no collection is created for a rejected owner")
}

func TestQuery_newConversationID(t *testing.T) {
	f := newFixture(t)
	ans, err := f.exec.Query(context.Background(), "u1", "", "q")
	require.NoError(t, err)
	assert.Len(t, ans.ConversationID, 36)
	assert.Len(t, f.sessions.GetOrCreate(SessionKey("u1", ans.ConversationID)).Turns, 2)
}

func TestQuery_sameConversationIsSerialised(t *testing.T) {
	f := newFixture(t, WithCondenseQuestion(false))
	f.gen.delay = 10 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, q := range []string{"alpha", "beta", "gamma"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := f.exec.Query(ctx, "u1", "shared", q)
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	turns := f.sessions.GetOrCreate(SessionKey("u1", "shared")).Turns
	require.Len(t, turns, 6)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, models.RoleUser, turns[i].Role)
		assert.Equal(t, "answer to "+turns[i].Content, turns[i+1].Content)
	}
	var lens []int
	for _, r := range f.gen.requests {
		lens = append(lens, len(r.History))
	}
	assert.ElementsMatch(t, []int{0, 2, 4}, lens, "each query must see all earlier exchanges")
}

func TestQuery_cancelledWhileWaiting(t *testing.T) {
	f := newFixture(t)
	lease, err := f.sessions.Acquire(context.Background(), SessionKey("u1", "busy"))
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.exec.Query(ctx, "u1", "busy", "q")
	require.Error(t, err)
	assert.True(t, apperr.IsTimeout(err))
	assert.Empty(t, f.gen.requests)
}

func TestQuery_conversationScopedToOwner(t *testing.T) {
	f := newFixture(t, WithCondenseQuestion(false))
	ctx := context.Background()
	_, err := f.exec.Query(ctx, "u1", "c1", "secret question")
	require.NoError(t, err)
	_, err = f.exec.Query(ctx, "u2", "c1", "other question")
	require.NoError(t, err)

	assert.Empty(t, f.gen.requests[1].History, "u2 must not see u1's history")
	assert.Len(t, f.sessions.GetOrCreate(SessionKey("u1", "c1")).Turns, 2)
	assert.Len(t, f.sessions.GetOrCreate(SessionKey("u2", "c1")).Turns, 2)
}
