package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"arkeep/internal/session"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// exemptPaths never trigger a silent refresh: they either mint or drop
// the credential themselves, or work without one.
var exemptPaths = map[string]bool{
	"/auth/google":      true,
	"/auth/refresh":     true,
	"/auth/logout":      true,
	"/metadata/preview": true,
}

// Client is the authenticated request pipeline. It attaches the live
// bearer token, silently refreshes an expired one, and retries a
// rejected call exactly once. Concurrent refresh attempts collapse
// into a single network call.
type Client struct {
	base       string
	httpClient *http.Client
	sessions   *session.Store
	logger     *zap.Logger

	refresh singleflight.Group

	mu                 sync.Mutex
	bootstrapAttempted bool
}

// NewClient builds a pipeline against base. The jar carries the
// ambient refresh cookie; pass nil for a cookie-less client.
func NewClient(base string, sessions *session.Store, jar http.CookieJar, logger *zap.Logger) *Client {
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Jar: jar},
		sessions:   sessions,
		logger:     logger,
	}
}

type callOptions struct {
	token string
}

// CallOption tweaks a single call.
type CallOption func(*callOptions)

// WithToken pins the call to an explicit token instead of the session
// store's.
func WithToken(token string) CallOption {
	return func(o *callOptions) { o.token = token }
}

// Call issues one logical request and decodes a JSON body into out
// when present. out may be nil. Failures are *Error for HTTP-level
// rejections and wrapped transport errors otherwise.
func (c *Client) Call(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return c.call(ctx, method, path, body, out, o.token, true)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, explicit string, canRetry bool) error {
	token := explicit
	if token == "" {
		if sess := c.sessions.Get(); sess != nil {
			token = sess.Token
		}
	}

	// One bootstrap refresh per process: a returning user may hold a
	// refresh cookie but no token yet. A failure just means guest mode.
	if canRetry && token == "" && !exemptPaths[path] && c.markBootstrapAttempt() {
		if err := c.refreshToken(ctx); err != nil {
			c.logger.Debug("bootstrap refresh failed, proceeding as guest", zap.Error(err))
		} else if sess := c.sessions.Get(); sess != nil {
			token = sess.Token
		}
	}

	resp, err := c.do(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !exemptPaths[path] {
		if canRetry {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err := c.refreshToken(ctx); err != nil {
				return err
			}
			return c.call(ctx, method, path, body, out, explicit, false)
		}
		// A fresh credential was rejected too: it is genuinely invalid
		// (e.g. refresh-token reuse detected), so sign out.
		c.sessions.Clear()
	}

	return decodeResponse(resp, out)
}

func (c *Client) markBootstrapAttempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bootstrapAttempted {
		return false
	}
	c.bootstrapAttempted = true
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// refreshToken exchanges the ambient session cookie for a fresh access
// token. All concurrent callers share one in-flight request and its
// outcome; a rejection signs the process out.
func (c *Client) refreshToken(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		resp, err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, "")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.sessions.Clear()
			return nil, &Error{
				Status:  resp.StatusCode,
				Code:    CodeUnauthorized,
				Message: "Session expired. Please log in again.",
			}
		}

		var payload AuthResponse
		if err := decodeResponse(resp, &payload); err != nil {
			return nil, err
		}

		next := session.Session{Token: payload.Token, Email: payload.Email}
		if current := c.sessions.Get(); current != nil {
			next.Name = current.Name
			next.PictureURL = current.PictureURL
		}
		c.sessions.Save(next)
		return nil, nil
	})
	return err
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("request failed (%d)", resp.StatusCode),
		}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			if payload.Message != "" {
				apiErr.Message = payload.Message
			}
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Status: resp.StatusCode, Message: "malformed response body"}
	}
	return nil
}
