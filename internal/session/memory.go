package session

import (
	"context"
	"sync"
	"time"

	scouterr "github.com/filescout/filescout/internal/errors"
)

// MemoryStore keeps sessions in a map. Contents are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxMessages int
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store; maxMessages zero means the
// default cap.
func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, id string, msgs ...Message) error {
	if id == "" {
		return scouterr.E(scouterr.KindInvalidInput, "session.Append", "empty session id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, CreatedAt: now}
		s.sessions[id] = sess
	}
	sess.Messages = trimFIFO(append(sess.Messages, msgs...), s.maxMessages)
	sess.LastAccessed = now
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, scouterr.E(scouterr.KindNotFound, "session.Get", "session not found: %s", id)
	}
	sess.LastAccessed = s.now()

	// Copy so callers can't mutate stored state.
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	return &out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastAccessed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
