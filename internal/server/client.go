package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/compendium/internal/models"
)

// Client calls a running Compendium server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Ask posts q to /api/v1/query.
func (c *Client) Ask(ctx context.Context, q models.Query, debug bool) (*models.Answer, error) {
	path := "/api/v1/query"
	if debug {
		path += "?debug=true"
	}
	var answer models.Answer
	if err := c.do(ctx, http.MethodPost, path, q, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Status fetches /api/v1/status.
func (c *Client) Status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Ingest posts req to /api/v1/embeddings.
func (c *Client) Ingest(ctx context.Context, req models.EmbeddingRequest) (*models.IngestResult, error) {
	var res models.IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/embeddings", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health-check", nil, nil)
}

// DeleteDocument deletes docID on the server.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(docID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env struct {
		StatusCode int             `json:"status_code"`
		Message    string          `json:"message"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
