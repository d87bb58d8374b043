// Package bulkapi submits validated import rows to a remote bulk-create endpoint.
package bulkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// DefaultTimeout is used when no HTTP client is supplied.
const DefaultTimeout = 60 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// BulkRequest is the payload sent to POST <baseURL>/<resource>/bulk.
type BulkRequest[T any] struct {
	Items []T `json:"items"`
}

// Client posts items of type T to one resource of the remote API.
type Client[T any] struct {
	baseURL    string
	resource   string
	token      string
	httpClient *http.Client
}

var _ core.BulkCreator[struct{}] = (*Client[struct{}])(nil)

// NewClient creates a client for resource under baseURL. A nil httpClient
// gets a client with DefaultTimeout.
func NewClient[T any](baseURL, resource, token string, httpClient *http.Client) *Client[T] {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client[T]{
		baseURL:    strings.TrimRight(baseURL, "/"),
		resource:   strings.Trim(resource, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// URL returns the bulk endpoint of the client's resource.
func (c *Client[T]) URL() string {
	return fmt.Sprintf("%s/%s/bulk", c.baseURL, c.resource)
}

// BulkCreate implements core.BulkCreator.
func (c *Client[T]) BulkCreate(ctx context.Context, items []T) (*core.BulkImportResult, error) {
	body, err := json.Marshal(BulkRequest[T]{Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var result core.BulkImportResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	return &result, nil
}

// statusError builds an error from a non-2xx response, preferring the
// server's {"error": "..."} or {"message": "..."} text.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(data, &payload) == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		return fmt.Errorf("bulk endpoint returned %d", resp.StatusCode)
	}
	return fmt.Errorf("bulk endpoint returned %d: %s", resp.StatusCode, msg)
}
