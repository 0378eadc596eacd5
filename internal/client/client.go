// Package client talks to the boardroom HTTP API and polls discussions until
// they settle.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"basegraph.app/boardroom/internal/http/dto"
	"basegraph.app/boardroom/internal/model"
)

// APIError is a non-successful response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("boardroom api: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type StartRequest struct {
	SessionID   string
	Plan        model.Plan
	Context     string
	UserMessage string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start submits a plan. The returned discussion is still active.
func (c *Client) Start(ctx context.Context, req StartRequest) (*model.Discussion, error) {
	plan := req.Plan
	return c.do(ctx, http.MethodPost, "/api/collaboration", dto.CollaborationRequest{
		Action:      dto.ActionStartCollaboration,
		SessionID:   req.SessionID,
		Plan:        &plan,
		Context:     req.Context,
		UserMessage: req.UserMessage,
	})
}

// Get fetches the latest snapshot through the action endpoint, the same
// contract browser clients poll.
func (c *Client) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	return c.do(ctx, http.MethodPost, "/api/collaboration", dto.CollaborationRequest{
		Action:       dto.ActionGetDiscussion,
		DiscussionID: discussionID,
	})
}

func (c *Client) Cancel(ctx context.Context, discussionID string) (*model.Discussion, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/discussions/"+url.PathEscape(discussionID)+"/cancel", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*model.Discussion, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var out dto.CollaborationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "unreadable response: " + err.Error()}
	}
	if !out.Success || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out.Discussion == nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "response has no discussion"}
	}
	return out.Discussion, nil
}
