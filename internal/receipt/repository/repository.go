package repository

import (
	"context"

	"securevote/client/internal/receipt/domain"
)

// Repository persists and lists local vote receipts.
type Repository interface {
	Create(ctx context.Context, r *domain.Receipt) error
	List(ctx context.Context) ([]*domain.Receipt, error)
}
