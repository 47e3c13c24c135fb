// Package api wraps all outbound requests to the loan platform backend:
// bearer-token attachment, JSON codec, multipart uploads, and normalization
// of server failures into a small error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pesaflow/internal/session"
)

const defaultUploadTimeout = 60 * time.Second

// Config is fixed at construction; the base URL never changes for the
// lifetime of the client.
type Config struct {
	BaseURL       string
	HTTPClient    *http.Client
	UploadTimeout time.Duration
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	uploadTimeout time.Duration
	sessions      *session.Manager
	log           *slog.Logger
}

func New(cfg Config, sessions *session.Manager, log *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout == 0 {
		uploadTimeout = defaultUploadTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    httpClient,
		uploadTimeout: uploadTimeout,
		sessions:      sessions,
		log:           log,
	}
}

// Get performs an authenticated or anonymous GET and decodes the JSON
// response into out (ignored when out is nil).
func (c *Client) Get(ctx context.Context, path string, requiresAuth bool, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, requiresAuth, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body any, requiresAuth bool, out any) error {
	return c.do(ctx, http.MethodPost, path, body, requiresAuth, out)
}

// bearer returns the token to attach, failing fast before any network call
// when auth is required but the session is absent or expired. An expired
// token is erased on the way out.
func (c *Client) bearer(requiresAuth bool) (string, error) {
	if !requiresAuth {
		return "", nil
	}
	token, err := c.sessions.Token()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotAuthenticated
	}
	if c.sessions.IsExpired(token) {
		if err := c.sessions.ClearToken(); err != nil {
			return "", err
		}
		return "", ErrSessionExpired
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, requiresAuth bool, out any) error {
	token, err := c.bearer(requiresAuth)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCommonHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, out)
}

func (c *Client) setCommonHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// handleResponse erases the token on any unauthorized/forbidden status,
// normalizes non-success statuses, and decodes a non-empty success body.
func (c *Client) handleResponse(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if err := c.sessions.ClearToken(); err != nil {
			c.log.Warn("failed to clear token after auth failure", "error", err)
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := normalizeError(resp.StatusCode, data)
		c.log.Debug("request failed",
			"status", resp.StatusCode,
			"message", apiErr.Message,
		)
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
