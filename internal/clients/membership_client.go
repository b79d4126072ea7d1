// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"librarian/internal/membership"
)

func (c *Client) RegisterMember(ctx context.Context, nm membership.NewMember) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodPost, "/members", nm, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) GetMember(ctx context.Context, id uuid.UUID) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodGet, "/members/"+id.String(), nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) SearchMembers(ctx context.Context, term string) ([]*membership.Member, error) {
	var members []*membership.Member
	if err := c.do(ctx, http.MethodGet, "/members?q="+url.QueryEscape(term), nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) UpdateMember(ctx context.Context, id uuid.UUID, upd membership.MemberUpdate) (membership.UpdateResult, error) {
	var result membership.UpdateResult
	err := c.do(ctx, http.MethodPut, "/members/"+id.String(), upd, &result)
	return result, err
}

func (c *Client) RemoveMember(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/members/"+id.String(), nil, nil)
}
