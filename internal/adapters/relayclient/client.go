// Package relayclient talks to a running relay over HTTP.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/editor-relay/internal/adapters/httpapi"
	"github.com/bnema/editor-relay/internal/application"
	"github.com/bnema/editor-relay/internal/domain"
)

const maxResponseBytes = 16 << 20

// StatusError is returned for any status the client has no outcome for.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// RequestTimeout bounds every call except the long-poll wait. Zero means
	// 30 seconds.
	RequestTimeout time.Duration
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) Create(ctx context.Context, content string) (domain.SessionID, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodPost, "session", strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("create session", resp)
	}

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}

	id, err := domain.ParseSessionID(payload.SessionID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id domain.SessionID) (string, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, sessionPath(id), nil)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("get session", resp)
	}
	return readText(resp)
}

func (c *Client) Push(ctx context.Context, id domain.SessionID, content string) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodPost, sessionPath(id), strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("push edit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("push edit", resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

// WaitOnce issues a single long-poll. domain.ErrNoContentYet means the relay
// held the request for its full wait timeout without an edit arriving.
func (c *Client) WaitOnce(ctx context.Context, id domain.SessionID) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, sessionPath(id)+"/wait", nil)
	if err != nil {
		return "", fmt.Errorf("wait for edit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return readText(resp)
	case http.StatusNoContent:
		return "", domain.ErrNoContentYet
	default:
		return "", statusError("wait for edit", resp)
	}
}

// WaitForEdit long-polls until an edit arrives, re-issuing the wait every time
// the relay answers with no content. onEmpty, when set, runs after each empty
// round.
func (c *Client) WaitForEdit(ctx context.Context, id domain.SessionID, onEmpty func()) (string, error) {
	for {
		content, err := c.WaitOnce(ctx, id)
		if !errors.Is(err, domain.ErrNoContentYet) {
			return content, err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if onEmpty != nil {
			onEmpty()
		}
	}
}

func (c *Client) Delete(ctx context.Context, id domain.SessionID) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodDelete, sessionPath(id), nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError("delete session", resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

func (c *Client) Health(ctx context.Context) (application.Stats, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, "healthz", nil)
	if err != nil {
		return application.Stats{}, fmt.Errorf("fetch health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return application.Stats{}, statusError("fetch health", resp)
	}

	var health httpapi.Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&health); err != nil {
		return application.Stats{}, fmt.Errorf("decode health response: %w", err)
	}
	return health.Stats(), nil
}

// SessionURL returns the relay URL of a session, for display.
func (c *Client) SessionURL(id domain.SessionID) (string, error) {
	return buildURL(c.BaseURL, sessionPath(id))
}

func (c *Client) send(ctx context.Context, method string, path string, body io.Reader) (*http.Response, error) {
	endpoint, err := buildURL(c.BaseURL, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	return c.httpClient().Do(req)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func sessionPath(id domain.SessionID) string {
	return "session/" + url.PathEscape(string(id))
}

func readText(resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		if text == "Not Found" {
			return fmt.Errorf("%s: %w", op, domain.ErrInvalidSessionID)
		}
		return fmt.Errorf("%s: %w", op, domain.ErrSessionNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, domain.ErrWaitConflict)
	}

	return &StatusError{Op: op, Status: resp.StatusCode, Body: text}
}

func buildURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("relay base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("relay base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("relay base url host is required")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse relay path: %w", err)
	}
	return endpoint.String(), nil
}
