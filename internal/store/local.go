// Package store is the local SQLite cache backing offline reads and the
// upload journal. Chat transcripts are mirrored here so history works
// without the backend; the journal keeps the watcher from re-uploading
// files it has already sent.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"deskmate/internal/logging"
)

// LocalStore wraps the SQLite cache database.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Transcript is a locally cached chat message.
type Transcript struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
}

// UploadRecord is one journaled upload, keyed by checksum so the watcher
// can skip files whose content it has already sent.
type UploadRecord struct {
	Path       string
	Checksum   string
	DocumentID string
	Size       int64
	UploadedAt time.Time
}

// NewLocalStore opens (creating if needed) the cache database at path.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("cache opened at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);

	CREATE TABLE IF NOT EXISTS uploads (
		checksum TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		document_id TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_path ON uploads(path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveTranscript inserts or replaces a cached chat message.
func (s *LocalStore) SaveTranscript(t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO transcripts (id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Role, t.Content, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// SaveTranscripts caches a batch of messages in one transaction.
func (s *LocalStore) SaveTranscripts(msgs []Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO transcripts (id, role, content, created_at) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(m.ID, m.Role, m.Content, m.CreatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save transcript %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// RecentTranscripts returns up to limit cached messages, oldest first.
// A limit of 0 returns everything.
func (s *LocalStore) RecentTranscripts(limit int) ([]Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, role, content, created_at FROM transcripts ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for display.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecordUpload journals a completed upload.
func (s *LocalStore) RecordUpload(r UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO uploads (checksum, path, document_id, size, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		r.Checksum, r.Path, r.DocumentID, r.Size, r.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// HasUpload reports whether content with the given checksum was already sent.
func (s *LocalStore) HasUpload(checksum string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM uploads WHERE checksum = ?`, checksum).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Uploads returns the journal, most recent first.
func (s *LocalStore) Uploads() ([]UploadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT checksum, path, document_id, size, uploaded_at FROM uploads ORDER BY uploaded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var out []UploadRecord
	for rows.Next() {
		var r UploadRecord
		if err := rows.Scan(&r.Checksum, &r.Path, &r.DocumentID, &r.Size, &r.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats returns row counts per table.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"transcripts", "uploads"} {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, err
		}
		stats[table] = n
	}
	return stats, nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}
