// internal/clients/circulation_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"librarian/internal/circulation"
	"librarian/pkg/eventstore"
)

func (c *Client) IssueBook(ctx context.Context, bookID, memberID uuid.UUID) (*circulation.Loan, error) {
	var loan circulation.Loan
	req := circulation.LoanRequest{BookID: bookID, MemberID: memberID}
	if err := c.do(ctx, http.MethodPost, "/loans/issue", req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) (*circulation.Loan, error) {
	var loan circulation.Loan
	req := circulation.LoanRequest{BookID: bookID, MemberID: memberID}
	if err := c.do(ctx, http.MethodPost, "/loans/return", req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) GetLoan(ctx context.Context, id uuid.UUID) (*circulation.Loan, error) {
	var loan circulation.Loan
	if err := c.do(ctx, http.MethodGet, "/loans/"+id.String(), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	var history []eventstore.Event
	if err := c.do(ctx, http.MethodGet, "/loans/"+id.String()+"/events", nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) ListLoans(ctx context.Context, filter circulation.LoanFilter) ([]*circulation.Loan, error) {
	q := url.Values{}
	if filter.BookID != nil {
		q.Set("book_id", filter.BookID.String())
	}
	if filter.MemberID != nil {
		q.Set("member_id", filter.MemberID.String())
	}
	if filter.OpenOnly {
		q.Set("open", strconv.FormatBool(true))
	}

	path := "/loans"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var loans []*circulation.Loan
	if err := c.do(ctx, http.MethodGet, path, nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *Client) OverdueLoans(ctx context.Context) ([]*circulation.OverdueLoan, error) {
	var loans []*circulation.OverdueLoan
	if err := c.do(ctx, http.MethodGet, "/loans/overdue", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *Client) Audit(ctx context.Context) ([]circulation.Inconsistency, error) {
	var found []circulation.Inconsistency
	if err := c.do(ctx, http.MethodGet, "/audit", nil, &found); err != nil {
		return nil, err
	}
	return found, nil
}
