// Package database persists stream registrations and application settings
// in SQLite so configured streams survive restarts.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// StreamRecord represents a monitored video stream stored in the database
type StreamRecord struct {
	ID        string
	Name      string
	Input     string
	Domain    string
	FPS       int
	Active    bool
	CreatedAt time.Time
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			input TEXT NOT NULL,
			domain TEXT NOT NULL,
			fps INTEGER DEFAULT 10,
			active INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_domain ON streams(domain)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveStream saves or updates a stream registration
func (d *Database) SaveStream(s *StreamRecord) error {
	query := `INSERT INTO streams (id, name, input, domain, fps, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			input = excluded.input,
			domain = excluded.domain,
			fps = excluded.fps,
			active = excluded.active`

	active := 0
	if s.Active {
		active = 1
	}

	_, err := d.db.Exec(query, s.ID, s.Name, s.Input, s.Domain, s.FPS, active, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	return nil
}

// GetStream retrieves a stream by ID
func (d *Database) GetStream(id string) (*StreamRecord, error) {
	query := `SELECT id, name, input, domain, fps, active, created_at FROM streams WHERE id = ?`

	var s StreamRecord
	var active int
	err := d.db.QueryRow(query, id).Scan(&s.ID, &s.Name, &s.Input, &s.Domain, &s.FPS, &active, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	s.Active = active == 1
	return &s, nil
}

// ListStreams returns all registered streams
func (d *Database) ListStreams() ([]*StreamRecord, error) {
	query := `SELECT id, name, input, domain, fps, active, created_at FROM streams ORDER BY created_at DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var streams []*StreamRecord
	for rows.Next() {
		var s StreamRecord
		var active int
		if err := rows.Scan(&s.ID, &s.Name, &s.Input, &s.Domain, &s.FPS, &active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		s.Active = active == 1
		streams = append(streams, &s)
	}
	return streams, nil
}

// DeleteStream deletes a stream by ID
func (d *Database) DeleteStream(id string) error {
	_, err := d.db.Exec("DELETE FROM streams WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

// SetStreamActive updates only the active flag of a stream
func (d *Database) SetStreamActive(id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := d.db.Exec("UPDATE streams SET active = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("failed to update stream state: %w", err)
	}
	return nil
}

// SaveConfig saves a configuration value
func (d *Database) SaveConfig(key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	_, err := d.db.Exec(query, key, value)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig retrieves a configuration value
func (d *Database) GetConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}
