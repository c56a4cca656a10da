// Package remote is the HTTP client for the hosted backend's per-table REST
// API. The backend is PostgREST-shaped: every mutable table exposes id,
// created_at and updated_at columns, filters ride in the query string, and
// mutations accept/return full record bodies.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"fitsync/internal/config"
)

type Client struct {
	baseURL string
	apiKey  string
	userID  string
	http    *http.Client
}

func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		userID:  cfg.UserID,
		http:    &http.Client{Timeout: cfg.GetTimeout()},
	}
}

// Select fetches records for a table, scoped to the current user. A non-zero
// since narrows to records with updated_at >= since, for pull-based catch-up.
func (c *Client) Select(ctx context.Context, table string, since time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("order", "updated_at.asc")
	if !since.IsZero() {
		q.Set("updated_at", "gte."+since.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, http.MethodGet, table+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return records, nil
}

func (c *Client) Insert(ctx context.Context, table string, record json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPost, table, record)
	return err
}

func (c *Client) Update(ctx context.Context, table string, id string, record json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPatch, table+"?id=eq."+url.QueryEscape(id), record)
	return err
}

func (c *Client) Delete(ctx context.Context, table string, id string) error {
	_, err := c.do(ctx, http.MethodDelete, table+"?id=eq."+url.QueryEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: remote returned %d: %s", method, path, resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
