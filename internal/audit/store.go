package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry records one processed mention and the reply that was posted for it.
// The trail is append-only observability; it is never consulted for
// deduplication.
type Entry struct {
	MentionCID string
	MentionURI string
	Author     string
	Labels     []string
	ReplyText  string
	CreatedAt  time.Time
}

// Store persists the audit trail using SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create table if not exists
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mention_cid TEXT NOT NULL,
			mention_uri TEXT NOT NULL,
			author TEXT NOT NULL,
			labels TEXT NOT NULL,
			reply_text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_replies_created_at ON replies(created_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an entry to the audit trail
func (s *Store) Record(entry Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO replies (mention_cid, mention_uri, author, labels, reply_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.MentionCID, entry.MentionURI, entry.Author,
		strings.Join(entry.Labels, ","), entry.ReplyText, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record reply: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT mention_cid, mention_uri, author, labels, reply_text, created_at
		FROM replies
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var labels string
		var createdAt int64
		if err := rows.Scan(&entry.MentionCID, &entry.MentionURI, &entry.Author,
			&labels, &entry.ReplyText, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		if labels != "" {
			entry.Labels = strings.Split(labels, ",")
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
