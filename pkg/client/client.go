package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dbrouter/pkg/models"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	defaultTimeout      = 30 * time.Second
)

// ErrRequestFailed is returned when the server answers with a non-2xx status.
var ErrRequestFailed = errors.New("request failed")

// StatusError carries the HTTP status and message of a failed operator call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrRequestFailed, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client talks to the operator endpoints of a dbrouter server.
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

// New creates a client for the server at baseURL. token may be empty.
func New(baseURL, token string) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = defaultRetryMax
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.HTTPClient.Timeout = defaultTimeout
	client.Logger = nil
	client.CheckRetry = retryConnectionErrors

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    client,
	}
}

// retryConnectionErrors retries only when no response was received.
// Switches are not idempotent from the caller's view, so HTTP errors are returned as-is.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	return err != nil, nil
}

// Status fetches the router status report.
func (c *Client) Status(ctx context.Context) (*models.RouterStatus, error) {
	var status models.RouterStatus
	if err := c.do(ctx, http.MethodGet, "/admin/db/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Switch makes backend index active.
func (c *Client) Switch(ctx context.Context, index int) (*models.SwitchResponse, error) {
	var resp models.SwitchResponse
	if err := c.do(ctx, http.MethodPost, "/admin/db/switch", models.SwitchRequest{Index: &index}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry clears the unavailable flag of backend index.
func (c *Client) Retry(ctx context.Context, index int) (*models.BackendStatus, error) {
	var backend models.BackendStatus
	path := "/admin/db/backends/" + strconv.Itoa(index) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, &backend); err != nil {
		return nil, err
	}
	return &backend, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
