package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	scouterr "github.com/filescout/filescout/internal/errors"
)

// SQLiteStore persists sessions to a SQLite database so histories
// survive restarts. One connection serializes writers, same as the
// catalog.
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
	now         func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	created_at REAL NOT NULL,
	last_accessed REAL NOT NULL,
	messages TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_accessed ON sessions(last_accessed);
`

// NewSQLiteStore opens or creates the session database at path.
func NewSQLiteStore(path string, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.NewSQLiteStore", err, "create data dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.NewSQLiteStore", err, "open database")
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, scouterr.Wrap(scouterr.KindStorage, "session.NewSQLiteStore", err, pragma)
		}
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		_ = db.Close()
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.NewSQLiteStore", err, "create schema")
	}

	return &SQLiteStore{db: db, maxMessages: maxMessages, now: time.Now}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, id string, msgs ...Message) error {
	if id == "" {
		return scouterr.E(scouterr.KindInvalidInput, "session.Append", "empty session id")
	}

	now := s.now()
	existing, err := s.load(ctx, id)
	if err != nil && !scouterr.IsKind(err, scouterr.KindNotFound) {
		return err
	}

	var createdAt time.Time
	var history []Message
	if existing != nil {
		createdAt = existing.CreatedAt
		history = existing.Messages
	} else {
		createdAt = now
	}
	history = trimFIFO(append(history, msgs...), s.maxMessages)

	encoded, err := json.Marshal(history)
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "session.Append", err, "encode messages")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, last_accessed, messages)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			messages = excluded.messages`,
		id, toSeconds(createdAt), toSeconds(now), string(encoded))
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "session.Append", err, "upsert")
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.LastAccessed = s.now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET last_accessed = ? WHERE session_id = ?`,
		toSeconds(sess.LastAccessed), id)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.Get", err, "touch")
	}
	return sess, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "session.Delete", err, "delete")
	}
	return nil
}

// Sweep implements Store.
func (s *SQLiteStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := toSeconds(s.now().Add(-ttl))
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_accessed < ?`, cutoff)
	if err != nil {
		return 0, scouterr.Wrap(scouterr.KindStorage, "session.Sweep", err, "delete expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, scouterr.Wrap(scouterr.KindStorage, "session.Sweep", err, "rows affected")
	}
	return int(n), nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, scouterr.Wrap(scouterr.KindStorage, "session.Count", err, "count")
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) load(ctx context.Context, id string) (*Session, error) {
	var encoded string
	var createdAt, lastAccessed float64
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, last_accessed, messages
		FROM sessions WHERE session_id = ?`, id).
		Scan(&createdAt, &lastAccessed, &encoded)
	if err == sql.ErrNoRows {
		return nil, scouterr.E(scouterr.KindNotFound, "session.Get", "session not found: %s", id)
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.Get", err, "scan")
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(encoded), &msgs); err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "session.Get", err, "decode messages")
	}

	return &Session{
		ID:           id,
		CreatedAt:    fromSeconds(createdAt),
		LastAccessed: fromSeconds(lastAccessed),
		Messages:     msgs,
	}, nil
}

func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}
