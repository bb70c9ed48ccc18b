package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS secure_tokens (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
)`

// SQLite stores values in a single table of a SQLite database.
type SQLite struct {
	db     *sql.DB
	sealer *Sealer
}

// OpenSQLite opens (or creates) the database at dsn and ensures the schema.
// sealer may be nil for plaintext storage.
func OpenSQLite(ctx context.Context, dsn string, sealer *Sealer) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("authkit/store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("authkit/store: migrate: %w", err)
	}
	return &SQLite{db: db, sealer: sealer}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secure_tokens WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("authkit/store: sqlite get: %w", err)
	}
	return s.sealer.open(key, v)
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	v, err := s.sealer.seal(key, value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO secure_tokens (key, value, updated_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, v)
	if err != nil {
		return fmt.Errorf("authkit/store: sqlite set: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secure_tokens WHERE key = ?`, key); err != nil {
		return fmt.Errorf("authkit/store: sqlite delete: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
