// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"librarian/internal/catalog"
)

func (c *Client) AddBook(ctx context.Context, nb catalog.NewBook) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/books", nb, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books/"+id.String(), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) SearchBooks(ctx context.Context, term string) ([]*catalog.Book, error) {
	var books []*catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books?q="+url.QueryEscape(term), nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) UpdateBook(ctx context.Context, id uuid.UUID, upd catalog.BookUpdate) (catalog.UpdateResult, error) {
	var result catalog.UpdateResult
	err := c.do(ctx, http.MethodPut, "/books/"+id.String(), upd, &result)
	return result, err
}

func (c *Client) RemoveBook(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/books/"+id.String(), nil, nil)
}
