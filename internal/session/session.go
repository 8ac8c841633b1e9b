// Package session stores short conversation histories so follow-up
// questions can carry context. Histories are capped FIFO and expire
// after a TTL; a memory store serves single-process setups and a SQLite
// store survives restarts.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// History limits.
const (
	// DefaultMaxMessages caps a session's history; older messages are
	// dropped FIFO.
	DefaultMaxMessages = 10
	// DefaultTTL is how long an untouched session lives.
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval is how often expired sessions are removed.
	DefaultSweepInterval = time.Hour
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation history.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Messages     []Message `json:"messages"`
}

// Store persists conversation histories. Both implementations create a
// session on first Append and treat Delete of a missing session as a
// no-op.
type Store interface {
	// Append adds messages to a session, creating it if needed, and
	// trims the history to the message cap.
	Append(ctx context.Context, id string, msgs ...Message) error
	// Get returns a session and refreshes its last-accessed time.
	// Missing sessions return KindNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes a session.
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions untouched for longer than ttl and returns
	// how many were removed.
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)
	// Close releases the store.
	Close() error
}

// NewID mints a session identifier.
func NewID() string {
	return uuid.NewString()
}

// trimFIFO keeps the newest max messages.
func trimFIFO(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
