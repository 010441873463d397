package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/models"
)

func TestStore_GetOrCreateAndAppend(t *testing.T) {
	s := NewStore()
	got := s.GetOrCreate("c1")
	assert.Equal(t, "c1", got.ConversationID)
	assert.Empty(t, got.Turns)

	require.NoError(t, s.Append(context.Background(), "c1", "what is the total?", "42 EUR"))
	got = s.GetOrCreate("c1")
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Content: "what is the total?"},
		{Role: models.RoleAssistant, Content: "42 EUR"},
	}, got.Turns)

	// snapshots are copies
	got.Turns[0].Content = "mutated"
	assert.Equal(t, "what is the total?", s.GetOrCreate("c1").Turns[0].Content)
}

func TestStore_sessionIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i%4)
			_ = s.Append(ctx, id, fmt.Sprintf("q-%s", id), fmt.Sprintf("a-%s", id))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("c%d", i)
		turns := s.GetOrCreate(id).Turns
		require.Len(t, turns, 10)
		for j := 0; j < len(turns); j += 2 {
			assert.Equal(t, "q-"+id, turns[j].Content)
			assert.Equal(t, "a-"+id, turns[j+1].Content)
		}
	}
}

func TestStore_leaseIsExclusivePerConversation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	l, err := s.Acquire(ctx, "c1")
	require.NoError(t, err)

	// a different conversation is not blocked
	other, err := s.Acquire(ctx, "c2")
	require.NoError(t, err)
	other.Release()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(waitCtx, "c1")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	acquired := make(chan *Lease)
	go func() {
		l2, err := s.Acquire(ctx, "c1")
		if err == nil {
			acquired <- l2
		}
	}()
	select {
	case <-acquired:
		t.Fatal("second lease granted while the first is held")
	case <-time.After(20 * time.Millisecond):
	}
	l.Append("q", "a")
	l.Release()
	l.Release()

	select {
	case l2 := <-acquired:
		assert.Len(t, l2.History(), 2)
		l2.Release()
	case <-time.After(time.Second):
		t.Fatal("second lease not granted after release")
	}
}

func TestStore_lruEviction(t *testing.T) {
	s := NewStore(WithMaxSessions(2))
	s.GetOrCreate("a")
	s.GetOrCreate("b")
	s.GetOrCreate("a")
	s.GetOrCreate("c")
	assert.Equal(t, 2, s.Len())

	// b was least recently used
	require.NoError(t, s.Append(context.Background(), "a", "q", "x"))
	assert.Len(t, s.GetOrCreate("a").Turns, 2)
	assert.Equal(t, 2, s.Len())
}

func TestStore_leasedSessionNeverEvicted(t *testing.T) {
	s := NewStore(WithMaxSessions(1))
	l, err := s.Acquire(context.Background(), "held")
	require.NoError(t, err)
	l.Append("q", "a")

	s.GetOrCreate("x")
	s.GetOrCreate("y")
	assert.Len(t, l.History(), 2)
	assert.Len(t, s.GetOrCreate("held").Turns, 2, "leased session must survive eviction")
	l.Release()
}

func TestStore_idleTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithIdleTTL(time.Minute))
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(context.Background(), "old", "q", "a"))
	now = now.Add(2 * time.Minute)
	s.GetOrCreate("fresh")
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.GetOrCreate("old").Turns, "idle session should have been dropped")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, s.EvictIdle(), "both sessions are idle now")
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.EvictIdle())
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("c1")
	assert.True(t, s.Delete("c1"))
	assert.False(t, s.Delete("c1"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_DeleteKeepsLeasedSession(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	l, err := s.Acquire(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, s.Delete("c1"), "a leased session must not be dropped")

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(waitCtx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the held lock still guards the conversation")

	l.Append("q", "a")
	l.Release()
	assert.True(t, s.Delete("c1"))
	assert.Empty(t, s.GetOrCreate("c1").Turns)
}
