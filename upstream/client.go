// Package upstream is the REST client for the portal backend. The backend is
// opaque: request and response bodies are JSON beyond the few identity fields
// normalized here, calls carry the browser's cookies, and every browser
// session gets its own client with its own cookie jar.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wecanbr/portal-gateway/domain"
	apperrors "github.com/wecanbr/portal-gateway/errors"
)

// Client talks to the portal backend on behalf of one browser session.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client with a fresh cookie jar.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		baseURL: u,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do issues a JSON request. A non-nil out is decoded from a 2xx body.
// Transport failures are wrapped in ErrTransient; 401/403 become AuthError;
// any other non-2xx becomes a RemoteOperationError carrying the extracted
// upstream message.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", apperrors.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if apperrors.IsAuthStatus(resp.StatusCode) {
		return apperrors.NewAuthError(resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		log.Debug().Int("status", resp.StatusCode).Str("path", path).
			Msg("upstream returned error status")
		return apperrors.NewRemoteOperationError(method+" "+path, resp.StatusCode, errBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// FetchIdentity calls the identity endpoint and normalizes the payload.
func (c *Client) FetchIdentity(ctx context.Context) (*domain.User, error) {
	var payload identityPayload
	if err := c.do(ctx, http.MethodGet, "/usuario/me", nil, &payload); err != nil {
		return nil, err
	}
	return payload.toUser(), nil
}

// RefreshToken asks upstream to renew the session cookie.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/refresh", nil, nil)
}

// LoginRequest is a login submission.
type LoginRequest struct {
	Login    string `json:"login"` // matricula or email
	Password string `json:"senha"`
}

// Login authenticates against upstream; the session cookie lands in the jar.
func (c *Client) Login(ctx context.Context, req LoginRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/login", req, nil)
}

// Logout invalidates the upstream session. Callers treat failure as
// non-fatal.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// ChangePassword performs the forced password change, authorized by the
// current password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"senha_atual": current, "senha_nova": next}
	return c.do(ctx, http.MethodPut, "/auth/senha", body, nil)
}

// RequestPasswordReset starts the reset flow for a login.
func (c *Client) RequestPasswordReset(ctx context.Context, login string) error {
	return c.do(ctx, http.MethodPost, "/auth/senha/reset", map[string]string{"login": login}, nil)
}

// ConfirmPasswordReset completes the reset flow with the mailed code.
func (c *Client) ConfirmPasswordReset(ctx context.Context, login, code, newPassword string) error {
	body := map[string]string{"login": login, "codigo": code, "senha_nova": newPassword}
	return c.do(ctx, http.MethodPost, "/auth/senha/reset/confirmar", body, nil)
}

// ValidateInternalToken confirms a one-time internal-access token.
func (c *Client) ValidateInternalToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/token/validar", map[string]string{"token": token}, nil)
}
