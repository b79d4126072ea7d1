// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, nb NewBook) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (UpdateResult, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
	// SearchBooks matches term case-insensitively inside title, author and
	// genre, and exactly against isbn and book_id. An empty term lists all.
	SearchBooks(ctx context.Context, term string) ([]*Book, error)
}
