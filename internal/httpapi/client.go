// Package httpapi is the JSON transport shared by the backend collaborator clients.
// Every backend route answers with the envelope {success, message, data}.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of a non-JSON error body is kept.
const maxErrorBody = 512

// Envelope is the response wrapper used by every backend route.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RemoteError is a response the backend produced and rejected: non-2xx or success=false.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("httpapi: remote error status=%d message=%s", e.Status, e.Message)
}

// Client sends JSON requests relative to BaseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for baseURL. timeout <= 0 uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Do sends body (JSON-encoded when non-nil) and decodes the envelope's data into out (when non-nil).
// Transport failures are returned as-is; backend rejections as *RemoteError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var env Envelope
	if jerr := json.Unmarshal(raw, &env); jerr != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &RemoteError{Status: resp.StatusCode, Message: truncate(string(raw))}
		}
		return "", fmt.Errorf("httpapi: decode envelope: %w", jerr)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return env.Message, &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("httpapi: decode data: %w", err)
		}
	}
	return env.Message, nil
}

// IsRemote reports whether err is a backend rejection and returns it.
func IsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Retryable reports whether a failed read may be retried: transport errors and 5xx/429 responses.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	re, ok := IsRemote(err)
	if !ok {
		return true
	}
	return re.Status >= 500 || re.Status == http.StatusTooManyRequests
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
