// ABOUTME: HTTP client for the support backend session/ticket API
// ABOUTME: Normalises transport and non-2xx failures into *Error with the status code

package supportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 10 * time.Second

	// DefaultMaxResponseBytes bounds how much of a response body is read.
	// Conversation fetches carry the full history, so it is generous.
	DefaultMaxResponseBytes int64 = 64 << 20
)

// Client talks to the support backend rooted at a base URL.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	logger           *slog.Logger
	maxResponseBytes int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxResponseBytes sets the largest response body the client accepts.
// Larger responses fail with an *Error instead of being truncated.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseBytes = n
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for baseURL, e.g. "https://support.example.com/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https scheme")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient:       &http.Client{Timeout: defaultTimeout},
		logger:           slog.Default(),
		maxResponseBytes: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "supportapi")
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateSession asks the backend for a new session.
func (c *Client) CreateSession(ctx context.Context, meta Metadata) (Session, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", meta, &out); err != nil {
		return Session{}, err
	}
	if out.SessionID == "" {
		return Session{}, &Error{Message: "server returned an empty session id", Status: http.StatusOK}
	}
	return Session{ID: out.SessionID}, nil
}

// FetchConversation returns the current ticket and message history for a
// session. A 404 means the session no longer exists.
func (c *Client) FetchConversation(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, &snap); err != nil {
		return nil, err
	}
	if snap.Messages == nil {
		snap.Messages = []Message{}
	}
	return &snap, nil
}

// SendMessage posts a visitor message. It fails without a request when the
// body is blank.
func (c *Client) SendMessage(ctx context.Context, sessionID string, in MessageInput) (*SendResult, error) {
	if strings.TrimSpace(in.Body) == "" {
		return nil, ErrEmptyBody
	}
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	var out SendResult
	path := "/session/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseTicket closes a ticket. It fails without a request when ticketID is zero.
func (c *Client) CloseTicket(ctx context.Context, ticketID int64) (*TicketActionResult, error) {
	return c.ticketAction(ctx, ticketID, "close")
}

// ReopenTicket reopens a closed ticket.
func (c *Client) ReopenTicket(ctx context.Context, ticketID int64) (*TicketActionResult, error) {
	return c.ticketAction(ctx, ticketID, "reopen")
}

// NewTicket closes any active ticket of the session and opens a fresh one.
func (c *Client) NewTicket(ctx context.Context, sessionID string) (*TicketActionResult, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	var out TicketActionResult
	path := "/session/" + url.PathEscape(sessionID) + "/new-ticket"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) ticketAction(ctx context.Context, ticketID int64, action string) (*TicketActionResult, error) {
	if ticketID == 0 {
		return nil, ErrMissingTicketID
	}
	var out TicketActionResult
	path := "/tickets/" + strconv.FormatInt(ticketID, 10) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a JSON request. out may be nil when the response body is not needed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err)
		return &Error{
			Message: fmt.Sprintf("request to %s failed: %v", path, err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return &Error{
			Message: fmt.Sprintf("reading response from %s: %v", path, err),
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	if int64(len(payload)) > c.maxResponseBytes {
		c.logger.Warn("response too large",
			"path", path,
			"limit", c.maxResponseBytes,
			"request_id", requestID)
		return &Error{
			Message: fmt.Sprintf("response from %s exceeds %d bytes", path, c.maxResponseBytes),
			Status:  resp.StatusCode,
		}
	}

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(path, resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{
			Message: fmt.Sprintf("decoding response from %s: %v", path, err),
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// errorFromResponse builds an *Error from a non-2xx response. The message is
// the body's "detail" or "error" string, falling back to a generic one.
func errorFromResponse(path string, status int, payload []byte) *Error {
	apiErr := &Error{
		Message: fmt.Sprintf("request to %s failed", path),
		Status:  status,
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return apiErr
	}
	apiErr.Detail = decoded

	fields, ok := decoded.(map[string]any)
	if !ok {
		return apiErr
	}
	if msg, ok := fields["detail"].(string); ok && msg != "" {
		apiErr.Message = msg
	} else if msg, ok := fields["error"].(string); ok && msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}
