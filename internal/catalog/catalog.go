// Package catalog persists the file catalog: one row per indexed path
// with its content hash, zlib-compressed text, summary, and processing
// status. SQLite in WAL mode via the pure-Go modernc driver.
package catalog

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	scouterr "github.com/filescout/filescout/internal/errors"
)

// Processing status values for a catalog row. A file moves
// pending_embedding -> pending_summary -> completed as the background
// worker drains its queues.
const (
	StatusPendingEmbedding = "pending_embedding"
	StatusPendingSummary   = "pending_summary"
	StatusCompleted        = "completed"
)

// Entry is one catalog row.
type Entry struct {
	ID          int64
	Path        string
	Hash        string
	Content     string // decompressed text
	Summary     string
	Status      string
	LastIndexed time.Time
}

// Stats summarizes catalog contents for /stats and /health.
type Stats struct {
	TotalFiles       int `json:"total_files"`
	PendingEmbedding int `json:"pending_embedding"`
	PendingSummary   int `json:"pending_summary"`
	Completed        int `json:"completed"`
}

// Catalog wraps the SQLite database. A single connection serializes
// writers; WAL keeps readers unblocked.
type Catalog struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE NOT NULL,
	hash TEXT NOT NULL,
	content BLOB,
	summary TEXT,
	processing_status TEXT DEFAULT 'pending_embedding',
	last_indexed REAL
);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(processing_status);
`

// Open creates or opens the catalog database at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.Open", err, "create data dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.Open", err, "open database")
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.Open", err, pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.Open", err, "create schema")
	}

	return &Catalog{db: db, path: path}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// HashContent returns the SHA-256 hex digest used as the content address.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NeedsReindex reports whether path is absent or stored with a different
// content hash.
func (c *Catalog) NeedsReindex(path, hash string) (bool, error) {
	var stored string
	err := c.db.QueryRow(`SELECT hash FROM files WHERE path = ?`, path).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, scouterr.Wrap(scouterr.KindStorage, "catalog.NeedsReindex", err, "query")
	}
	return stored != hash, nil
}

// Upsert inserts or replaces the row for path. On conflict the summary is
// cleared and the status reset, since changed content invalidates both.
func (c *Catalog) Upsert(path, hash, content, status string) error {
	compressed, err := compress([]byte(content))
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "catalog.Upsert", err, "compress content")
	}

	_, err = c.db.Exec(`
		INSERT INTO files (path, hash, content, summary, processing_status, last_indexed)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			content = excluded.content,
			summary = NULL,
			processing_status = excluded.processing_status,
			last_indexed = excluded.last_indexed`,
		path, hash, compressed, status, float64(time.Now().UnixNano())/1e9)
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "catalog.Upsert", err, "upsert")
	}
	return nil
}

// Get returns the entry for path, including decompressed content.
func (c *Catalog) Get(path string) (*Entry, error) {
	row := c.db.QueryRow(`
		SELECT id, path, hash, content, COALESCE(summary, ''), processing_status, last_indexed
		FROM files WHERE path = ?`, path)
	return scanEntry(row, "catalog.Get")
}

// GetByHash is the read-only dedup probe: it returns any entry sharing
// the given content hash, preferring one with a completed summary.
func (c *Catalog) GetByHash(hash string) (*Entry, error) {
	row := c.db.QueryRow(`
		SELECT id, path, hash, content, COALESCE(summary, ''), processing_status, last_indexed
		FROM files WHERE hash = ?
		ORDER BY CASE processing_status WHEN 'completed' THEN 0 ELSE 1 END
		LIMIT 1`, hash)
	return scanEntry(row, "catalog.GetByHash")
}

// SetSummary stores the summary for path and advances a pending_summary
// row to completed.
func (c *Catalog) SetSummary(path, summary string) error {
	res, err := c.db.Exec(`
		UPDATE files SET summary = ?,
			processing_status = CASE processing_status
				WHEN 'pending_summary' THEN 'completed'
				ELSE processing_status END
		WHERE path = ?`, summary, path)
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "catalog.SetSummary", err, "update")
	}
	return requireRow(res, "catalog.SetSummary", path)
}

// SetStatus sets the processing status for path.
func (c *Catalog) SetStatus(path, status string) error {
	res, err := c.db.Exec(`UPDATE files SET processing_status = ? WHERE path = ?`, status, path)
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "catalog.SetStatus", err, "update")
	}
	return requireRow(res, "catalog.SetStatus", path)
}

// Delete removes the row for path. Deleting a missing path is a no-op.
func (c *Catalog) Delete(path string) error {
	if _, err := c.db.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return scouterr.Wrap(scouterr.KindStorage, "catalog.Delete", err, "delete")
	}
	return nil
}

// PendingEmbedding lists paths awaiting embedding, most recently indexed
// first so fresh edits surface quickly.
func (c *Catalog) PendingEmbedding() ([]string, error) {
	return c.pathsByStatus(StatusPendingEmbedding)
}

// PendingSummary lists paths awaiting summaries.
func (c *Catalog) PendingSummary() ([]string, error) {
	return c.pathsByStatus(StatusPendingSummary)
}

func (c *Catalog) pathsByStatus(status string) ([]string, error) {
	rows, err := c.db.Query(`
		SELECT path FROM files WHERE processing_status = ?
		ORDER BY last_indexed DESC`, status)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.pathsByStatus", err, "query")
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.pathsByStatus", err, "scan")
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// All returns every entry without content, for index rebuilds and /stats.
func (c *Catalog) All() ([]*Entry, error) {
	rows, err := c.db.Query(`
		SELECT id, path, hash, COALESCE(summary, ''), processing_status, last_indexed
		FROM files ORDER BY path`)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.All", err, "query")
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var lastIndexed float64
		if err := rows.Scan(&e.ID, &e.Path, &e.Hash, &e.Summary, &e.Status, &lastIndexed); err != nil {
			return nil, scouterr.Wrap(scouterr.KindStorage, "catalog.All", err, "scan")
		}
		e.LastIndexed = secondsToTime(lastIndexed)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats returns row counts grouped by processing status.
func (c *Catalog) Stats() (Stats, error) {
	rows, err := c.db.Query(`SELECT processing_status, COUNT(*) FROM files GROUP BY processing_status`)
	if err != nil {
		return Stats{}, scouterr.Wrap(scouterr.KindStorage, "catalog.Stats", err, "query")
	}
	defer func() { _ = rows.Close() }()

	var s Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, scouterr.Wrap(scouterr.KindStorage, "catalog.Stats", err, "scan")
		}
		s.TotalFiles += count
		switch status {
		case StatusPendingEmbedding:
			s.PendingEmbedding = count
		case StatusPendingSummary:
			s.PendingSummary = count
		case StatusCompleted:
			s.Completed = count
		}
	}
	return s, rows.Err()
}

func scanEntry(row *sql.Row, op string) (*Entry, error) {
	var e Entry
	var blob []byte
	var lastIndexed float64
	err := row.Scan(&e.ID, &e.Path, &e.Hash, &blob, &e.Summary, &e.Status, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, scouterr.E(scouterr.KindNotFound, op, "no catalog entry")
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, op, err, "scan")
	}

	content, err := decompress(blob)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.KindStorage, op, err, "decompress content")
	}
	e.Content = string(content)
	e.LastIndexed = secondsToTime(lastIndexed)
	return &e, nil
}

func requireRow(res sql.Result, op, path string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return scouterr.Wrap(scouterr.KindStorage, op, err, "rows affected")
	}
	if n == 0 {
		return scouterr.E(scouterr.KindNotFound, op, "no catalog entry for %s", path)
	}
	return nil
}

func secondsToTime(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
