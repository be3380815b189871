// Package repository persists the single session token slot in the local
// SQLite store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// slot is the only key the token table accepts; the schema enforces it.
const slot = "current"

// SQLiteStore implements session.TokenStore on the local store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a token store backed by the given database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns the persisted token, or "" when no prior session exists.
func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM session_token WHERE slot = ?", slot,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Save writes the token into the slot, replacing any previous one.
func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_token (slot, token, saved_at) VALUES (?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET token = excluded.token, saved_at = excluded.saved_at`,
		slot, token, time.Now().UTC(),
	)
	return err
}

// Clear empties the slot. Clearing an already empty slot is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_token WHERE slot = ?", slot)
	return err
}
