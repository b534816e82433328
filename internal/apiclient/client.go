// Package apiclient is the authenticated request pipeline. Every outbound
// call carries the bearer credentials; an expired access token is recovered
// transparently by a refresh protocol with at-most-one refresh in flight,
// shared by every request that fails while it runs.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Envelope is the standard response wrapper returned by every backend call.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message,omitempty"`
	Error     *EnvelopeError  `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// EnvelopeError is the error block of a failed envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Credentials is the session surface the pipeline needs.
// Implemented by session.Manager.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(ctx context.Context, access, refresh string)
	DeviceID(ctx context.Context) string
}

// refreshResult is the single outcome of an in-flight refresh, delivered to
// every request that queued behind it.
type refreshResult struct {
	token string
	err   error
}

// Client issues authenticated requests against the backend.
type Client struct {
	baseURL     string
	refreshPath string
	http        *http.Client
	creds       Credentials

	// onForcedLogout runs when authorization is unrecoverable. It clears
	// stored credentials and routes the user to the login entry point.
	onForcedLogout func(ctx context.Context, reason string)

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

// New creates a pipeline client. timeout bounds every individual HTTP attempt;
// a request that exceeds it is treated as a network failure.
func New(baseURL, refreshPath string, timeout time.Duration, creds Credentials, onForcedLogout func(ctx context.Context, reason string)) *Client {
	if onForcedLogout == nil {
		onForcedLogout = func(context.Context, string) {}
	}
	return &Client{
		baseURL:        baseURL,
		refreshPath:    refreshPath,
		http:           &http.Client{Timeout: timeout},
		creds:          creds,
		onForcedLogout: onForcedLogout,
	}
}

// Do issues a request and decodes the envelope's data into out (when non-nil).
// A 401 is retried exactly once after the shared refresh settles; a second 401
// surfaces as ErrSessionExpired rather than looping.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	token := c.creds.AccessToken()

	status, payload, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		newToken, err := c.awaitRefresh(ctx, token)
		if err != nil {
			return err
		}

		status, payload, err = c.send(ctx, method, path, body, newToken)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			// Retried once with a fresh token and still rejected; never retry again.
			return fmt.Errorf("request rejected after refresh: %w", ErrSessionExpired)
		}
	}

	return decodeEnvelope(status, payload, out)
}

// send performs one HTTP attempt. Transport failures come back wrapped in
// ErrNetwork; any received response is returned as-is.
func (c *Client) send(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ulid.Make().String())
	if deviceID := c.creds.DeviceID(ctx); deviceID != "" {
		req.Header.Set("X-Device-ID", deviceID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("request transport failure",
			"component", "apiclient",
			"method", method,
			"path", path,
			"error", err,
		)
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	return resp.StatusCode, buf.Bytes(), nil
}

// awaitRefresh returns a fresh access token, performing the refresh itself or
// queuing behind the one already in flight. Queued requests observe the single
// shared outcome in FIFO order of arrival. staleToken is the token the failed
// request carried; if another request already rotated past it, its result is
// reused instead of issuing a redundant refresh.
func (c *Client) awaitRefresh(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if current := c.creds.AccessToken(); current != "" && current != staleToken {
		c.mu.Unlock()
		return current, nil
	}
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	// The refresh outcome is shared; one caller's cancellation must not
	// poison everyone queued behind it.
	token, err := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}

	return token, err
}

// refresh exchanges the stored refresh token for a new token pair. Any failure
// here is unrecoverable authorization loss: the forced-logout collaborator
// runs and every suspended request fails with the same error.
func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		c.onForcedLogout(ctx, "no refresh token stored")
		return "", ErrSessionExpired
	}

	slog.Info("refreshing access token", "component", "apiclient")

	// Dedicated unauthenticated call; never recurses into Do.
	status, payload, err := c.send(ctx, http.MethodPost, c.refreshPath,
		map[string]string{"refreshToken": refreshToken}, "")
	if err != nil {
		c.onForcedLogout(ctx, "token refresh failed: "+err.Error())
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	var tokens struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeEnvelope(status, payload, &tokens); err != nil {
		c.onForcedLogout(ctx, "token refresh rejected")
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	c.creds.SetTokens(ctx, tokens.Token, tokens.RefreshToken)

	slog.Info("access token refreshed", "component", "apiclient")
	return tokens.Token, nil
}

// decodeEnvelope normalizes a received response into either out or an error.
// success=false is a logical failure even on HTTP 2xx.
func decodeEnvelope(status int, payload []byte, out any) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if status >= 200 && status < 300 {
			return fmt.Errorf("decode response envelope: %w", err)
		}
		return &APIError{Message: http.StatusText(status)}
	}

	if !env.Success || status < 200 || status >= 300 {
		apiErr := &APIError{Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Details = env.Error.Details
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
