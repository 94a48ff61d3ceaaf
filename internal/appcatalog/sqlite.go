package appcatalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the cache in a single app_names table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; the resolver already serializes Put.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS app_names (
		app_id INTEGER PRIMARY KEY,
		name   TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads every cached row.
func (s *SQLiteStore) Load() (map[uint32]string, error) {
	rows, err := s.db.Query(`SELECT app_id, name FROM app_names`)
	if err != nil {
		return map[uint32]string{}, fmt.Errorf("query app names: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return out, fmt.Errorf("scan app name row: %w", err)
		}
		out[uint32(id)] = name
	}
	return out, rows.Err()
}

// Put upserts entries in one transaction.
func (s *SQLiteStore) Put(entries map[uint32]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO app_names (app_id, name) VALUES (?, ?)
		ON CONFLICT(app_id) DO UPDATE SET name = excluded.name`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for id, name := range entries {
		if _, err := stmt.Exec(int64(id), name); err != nil {
			return fmt.Errorf("upsert app %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
