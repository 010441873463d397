// Package session keeps conversation history in memory, one entry per conversation id.
//
// Work on a conversation is serialised through a Lease: the holder reads the history, runs
// retrieval and generation, and appends the new turn pair before releasing. Different
// conversations never wait on each other.
package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// DefaultMaxSessions bounds the store when no limit is configured.
const DefaultMaxSessions = 10000

// Store is a bounded, concurrency-safe conversation store. Least recently used sessions are
// evicted past the size bound, and sessions idle longer than the TTL are dropped. A session with
// an outstanding lease or waiter is never evicted.
type Store struct {
	mu          sync.Mutex
	items       map[string]*list.Element
	lru         *list.List
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

type entry struct {
	id      string
	lock    chan struct{}
	turns   []models.Turn
	updated time.Time
	refs    int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxSessions sets the LRU bound. Values < 1 use DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

// WithIdleTTL drops sessions not touched for d. Zero disables idle eviction.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) { s.idleTTL = d }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]*list.Element),
		lru:   list.New(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxSessions < 1 {
		s.maxSessions = DefaultMaxSessions
	}
	s.logger = utils.LoggerOrNop(s.logger)
	return s
}

// getLocked returns the entry for id, creating it when absent, and marks it most recently used.
func (s *Store) getLocked(id string) *entry {
	now := s.now()
	if el, ok := s.items[id]; ok {
		s.lru.MoveToFront(el)
		e := el.Value.(*entry)
		e.updated = now
		return e
	}
	e := &entry{id: id, lock: make(chan struct{}, 1), updated: now}
	s.items[id] = s.lru.PushFront(e)
	s.evictLocked()
	return e
}

func (s *Store) evictLocked() {
	if s.idleTTL > 0 {
		cutoff := s.now().Add(-s.idleTTL)
		for el := s.lru.Back(); el != nil; {
			prev := el.Prev()
			if e := el.Value.(*entry); e.refs == 0 && e.updated.Before(cutoff) {
				s.removeLocked(el)
			}
			el = prev
		}
	}
	// the front entry is the one being touched and always stays
	for el := s.lru.Back(); el != nil && el != s.lru.Front() && s.lru.Len() > s.maxSessions; {
		prev := el.Prev()
		if el.Value.(*entry).refs == 0 {
			s.removeLocked(el)
		}
		el = prev
	}
}

func (s *Store) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	s.lru.Remove(el)
	delete(s.items, e.id)
	s.logger.Debug("evicted session", zap.String("conversation_id", e.id))
}

func (s *Store) snapshotLocked(e *entry) models.Session {
	turns := make([]models.Turn, len(e.turns))
	copy(turns, e.turns)
	return models.Session{ConversationID: e.id, Turns: turns, UpdatedAt: e.updated}
}

// GetOrCreate returns a snapshot of the session, creating an empty one for an unknown id.
func (s *Store) GetOrCreate(id string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.getLocked(id))
}

// Acquire waits for exclusive use of the conversation. The caller must Release the lease.
// Waiting stops with ctx's error when ctx is done first.
func (s *Store) Acquire(ctx context.Context, id string) (*Lease, error) {
	s.mu.Lock()
	e := s.getLocked(id)
	e.refs++
	s.mu.Unlock()

	select {
	case e.lock <- struct{}{}:
		return &Lease{store: s, entry: e}, nil
	case <-ctx.Done():
		s.mu.Lock()
		e.refs--
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Append adds a user/assistant turn pair under the conversation's lease.
func (s *Store) Append(ctx context.Context, id, user, assistant string) error {
	l, err := s.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer l.Release()
	l.Append(user, assistant)
	return nil
}

// Delete drops a session and reports whether it did. A session with an outstanding lease or
// waiter is kept, so its lock is never replaced while held.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[id]
	if !ok || el.Value.(*entry).refs > 0 {
		return false
	}
	s.removeLocked(el)
	return true
}

// EvictIdle applies idle and size eviction now and returns how many sessions it dropped.
func (s *Store) EvictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.lru.Len()
	s.evictLocked()
	return before - s.lru.Len()
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Lease is exclusive use of one conversation.
type Lease struct {
	store    *Store
	entry    *entry
	released sync.Once
}

// ConversationID returns the leased conversation's id.
func (l *Lease) ConversationID() string { return l.entry.id }

// History returns a copy of the turns so far.
func (l *Lease) History() []models.Turn {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.snapshotLocked(l.entry).Turns
}

// Append records a completed exchange.
func (l *Lease) Append(user, assistant string) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.entry.turns = append(l.entry.turns,
		models.Turn{Role: models.RoleUser, Content: user},
		models.Turn{Role: models.RoleAssistant, Content: assistant},
	)
	l.entry.updated = l.store.now()
}

// Release ends the lease. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.released.Do(func() {
		l.store.mu.Lock()
		l.entry.refs--
		l.entry.updated = l.store.now()
		l.store.mu.Unlock()
		<-l.entry.lock
	})
}
