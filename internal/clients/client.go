// internal/clients/client.go

// Package clients is a Go SDK for the librarian HTTP API.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"librarian/internal/credential"
	"librarian/internal/httpx"
)

// APIError is a failure reported by the API.
type APIError struct {
	Status int
	Kind   string
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Reason)
}

// Client talks to one API instance. It is safe for concurrent use once
// logged in.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Login exchanges credentials for a session token used by later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var session credential.Session
	err := c.do(ctx, http.MethodPost, "/login", credential.LoginRequest{Username: username, Password: password}, &session)
	if err != nil {
		return err
	}
	c.token = session.Token
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure httpx.Failure
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return &APIError{Status: resp.StatusCode, Kind: "unexpected", Reason: http.StatusText(resp.StatusCode)}
		}
		return &APIError{Status: resp.StatusCode, Kind: failure.Kind, Reason: failure.Reason}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
