// Package repository persists vote receipts in the local SQLite store.
package repository

import (
	"context"
	"database/sql"

	"securevote/client/internal/receipt/domain"
)

// SQLiteRepository implements Repository on the local store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a receipt repository backed by the given
// database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts one receipt.
func (r *SQLiteRepository) Create(ctx context.Context, receipt *domain.Receipt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vote_receipt (id, election_id, election_title, candidate_name, vote_id, message, cast_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.ElectionID, receipt.ElectionTitle, receipt.CandidateName,
		receipt.VoteID, receipt.Message, receipt.CastAt,
	)
	return err
}

// List returns all receipts, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*domain.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, election_id, election_title, candidate_name, vote_id, message, cast_at
		FROM vote_receipt ORDER BY cast_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Receipt
	for rows.Next() {
		var receipt domain.Receipt
		if err := rows.Scan(
			&receipt.ID, &receipt.ElectionID, &receipt.ElectionTitle, &receipt.CandidateName,
			&receipt.VoteID, &receipt.Message, &receipt.CastAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &receipt)
	}
	return out, rows.Err()
}
