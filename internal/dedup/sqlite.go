package dedup

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a single-table SQLite database. The
// claim is a single INSERT OR IGNORE, so two racing deliveries of the same
// message ID resolve inside the database engine rather than in application
// code.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the dedup database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening dedup database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging dedup database: %w", err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS processed_messages (
		message_id TEXT PRIMARY KEY,
		claimed_at DATETIME DEFAULT (datetime('now'))
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating processed_messages table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Claim implements Store.
func (s *SQLiteStore) Claim(id string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_messages (message_id) VALUES (?)`, id)
	if err != nil {
		return false, fmt.Errorf("claiming message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming message %s: %w", id, err)
	}
	return n == 1, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
