// internal/catalog/domain.go
package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"librarian/internal/apperr"
)

const aggregateType = "book"

var (
	ErrBookNotFound       = fmt.Errorf("book %w", apperr.ErrNotFound)
	ErrDuplicateISBN      = errors.New("a book with this isbn already exists")
	ErrBookOnLoan         = errors.New("book has copies on loan")
	ErrBookHasHistory     = errors.New("book is referenced by loan history")
	ErrQuantityBelowLoans = errors.New("quantity is below the number of copies on loan")
)

// Book is a title in the catalog and its copy counts.
type Book struct {
	ID                uuid.UUID `json:"book_id" db:"book_id"`
	Title             string    `json:"title" db:"title"`
	Author            string    `json:"author" db:"author"`
	ISBN              string    `json:"isbn" db:"isbn"`
	Genre             string    `json:"genre" db:"genre"`
	Quantity          int       `json:"quantity" db:"quantity"`
	AvailableQuantity int       `json:"available_quantity" db:"available_quantity"`
}

// OnLoan is the number of copies currently lent out.
func (b Book) OnLoan() int { return b.Quantity - b.AvailableQuantity }

// NewBook is the input to AddBook.
type NewBook struct {
	Title    string `json:"title" validate:"required,max=255"`
	Author   string `json:"author" validate:"required,max=255"`
	ISBN     string `json:"isbn" validate:"required,max=32"`
	Genre    string `json:"genre" validate:"max=100"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

// BookUpdate replaces a book's editable fields. The isbn is immutable.
type BookUpdate struct {
	Title    string `json:"title" validate:"required,max=255"`
	Author   string `json:"author" validate:"required,max=255"`
	Genre    string `json:"genre" validate:"max=100"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// UpdateResult tells a no-op apart from a write.
type UpdateResult struct {
	Book    *Book `json:"book"`
	Changed bool  `json:"changed"`
}

// BookAddedEvent is recorded when a new book is added.
type BookAddedEvent struct {
	ID       uuid.UUID `json:"book_id"`
	ISBN     string    `json:"isbn"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	Quantity int       `json:"quantity"`
}

// BookUpdatedEvent is recorded when a book's fields or copy count change.
type BookUpdatedEvent struct {
	ID           uuid.UUID `json:"book_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Genre        string    `json:"genre"`
	NewQuantity  int       `json:"new_quantity"`
	NewAvailable int       `json:"new_available"`
}

// BookRemovedEvent is recorded when a book leaves the catalog.
type BookRemovedEvent struct {
	ID   uuid.UUID `json:"book_id"`
	ISBN string    `json:"isbn"`
}
