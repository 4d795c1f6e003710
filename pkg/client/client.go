// Package client is the Go SDK for the habit service. It couples a JSON HTTP
// transport with a query cache that supports optimistic mutations: writes
// update cached collections speculatively, reconcile server-assigned ids on
// success, and roll back to a snapshot on failure.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is the decoded error envelope of a failed request. Status 0 means
// the request never produced an HTTP response.
type APIError struct {
	Status int    `json:"-"`
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport error: %s", e.Detail)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Type, e.Status, e.Detail)
}

// Client talks to the habit service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cache   *Store
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New constructs a Client with a fresh cache.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		cache:   NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache exposes the underlying query store.
func (c *Client) Cache() *Store {
	return c.cache
}

// do performs a JSON request. out may be nil for responses without a body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &APIError{Type: "encode_failed", Detail: err.Error()}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &APIError{Type: "request_failed", Detail: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Type: "transport", Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Type: "http_error"}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Detail == "" {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: resp.StatusCode, Type: "decode_failed", Detail: err.Error()}
	}
	return nil
}
