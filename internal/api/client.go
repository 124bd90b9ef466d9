// Package api implements the authenticated client for the deskmate backend.
//
// Every call attaches the stored bearer token, and a request that comes back
// 401 is replayed exactly once after a silent token refresh. Concurrent
// requests that fail together share a single refresh via singleflight rather
// than each racing their own. All failures are normalized to *Error and
// reported once through the notification sink.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deskmate/internal/creds"
	"deskmate/internal/logging"
	"deskmate/internal/notify"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 30 * time.Second

// Client issues HTTP calls to the backend with automatic credential
// attachment and one-shot recovery from expired credentials.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	creds      creds.Store
	sink       notify.Sink
	refresh    singleflight.Group
	onRefresh  func()
}

// Options tunes a single request.
type Options struct {
	// Headers are merged into the outgoing request.
	Headers http.Header
	// OnProgress is invoked as the request body is sent. Used for uploads.
	OnProgress func(sent, total int64)
	// NoAuth skips bearer attachment and the refresh-and-replay path.
	// Set for login, register and the refresh call itself.
	NoAuth bool
	// ContentType of the request body. Defaults to application/json when a
	// body is present.
	ContentType string
	// Timeout overrides the client's fixed timeout for this call (uploads).
	Timeout time.Duration
}

// Response is the successful result of a request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// New creates a client for the given base URL. The credential store and
// notification sink are required collaborators; both are injected so the
// client can be tested in isolation.
func New(baseURL string, timeout time.Duration, store creds.Store, sink notify.Sink) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		// Timeouts are applied per-request via context so that individual
		// calls (uploads) can override the default.
		httpClient: &http.Client{},
		creds:      store,
		sink:       sink,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnRefresh registers a callback invoked after each successful credential
// refresh. Concurrent 401s sharing one refresh fire it once. Must be set
// before the client is used.
func (c *Client) OnRefresh(fn func()) {
	c.onRefresh = fn
}

// Do issues a request with path relative to the base URL and returns the
// normalized result. A nil body sends no payload.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// retried is threaded explicitly: each original request gets at most one
	// refresh-and-replay, never more.
	return c.send(ctx, method, path, body, opts, false)
}

// send performs one attempt, recursing exactly once after a successful
// refresh when the backend rejects the access token.
func (c *Client) send(ctx context.Context, method, path string, body []byte, opts *Options, retried bool) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body, opts)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "invalid request", Err: err}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		logging.APIError("%s %s transport failure: %v", method, path, err)
		msg := "unable to reach the server"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "the request timed out"
		}
		c.publish(msg, notify.SeverityError)
		return nil, &Error{Kind: KindTransport, Message: msg, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		msg := "failed to read server response"
		c.publish(msg, notify.SeverityError)
		return nil, &Error{Kind: KindTransport, Message: msg, Err: err}
	}

	logging.APIDebug("%s %s -> %d in %v retried=%v", method, path, httpResp.StatusCode, time.Since(start), retried)

	if httpResp.StatusCode == http.StatusUnauthorized {
		if !opts.NoAuth && !retried {
			if err := c.refreshCredentials(ctx); err != nil {
				// Refresh failed or no refresh token: the session is over.
				if clearErr := c.creds.Clear(); clearErr != nil {
					logging.AuthError("failed to clear credentials: %v", clearErr)
				}
				msg := "session expired, please log in again"
				c.publish(msg, notify.SeverityWarning)
				return nil, &Error{Kind: KindAuth, Status: httpResp.StatusCode, Message: msg, Err: err}
			}
			// Silent on success: replay the original request once with the
			// freshly stored access token.
			return c.send(ctx, method, path, body, opts, true)
		}
		// Either a replay was rejected again or the call never carried
		// credentials (login with a bad password). Do not retry.
		msg := extractMessage(httpResp.StatusCode, respBody)
		c.publish(msg, notify.SeverityError)
		return nil, &Error{Kind: KindAuth, Status: httpResp.StatusCode, Message: msg}
	}

	if httpResp.StatusCode >= 400 {
		msg := extractMessage(httpResp.StatusCode, respBody)
		c.publish(msg, notify.SeverityError)
		return nil, &Error{Kind: KindAPI, Status: httpResp.StatusCode, Message: msg}
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

// newRequest builds the outgoing request, attaching the bearer token from
// the credential store when one exists.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, opts *Options) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		if opts.OnProgress != nil {
			reader = &progressReader{
				r:     bytes.NewReader(body),
				total: int64(len(body)),
				fn:    opts.OnProgress,
			}
		} else {
			reader = bytes.NewReader(body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		contentType := opts.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if !opts.NoAuth {
		if pair, err := c.creds.Load(); err == nil && pair.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		}
	}

	return req, nil
}

// refreshCredentials exchanges the stored refresh token for a new credential
// pair and persists it. Concurrent callers share one in-flight refresh.
func (c *Client) refreshCredentials(ctx context.Context) error {
	_, err, shared := c.refresh.Do("refresh", func() (interface{}, error) {
		pair, err := c.creds.Load()
		if err != nil {
			return nil, fmt.Errorf("no stored credentials: %w", err)
		}
		if pair.RefreshToken == "" {
			return nil, errors.New("no refresh token stored")
		}

		logging.Auth("access token rejected, refreshing")

		tok, err := c.postRefresh(ctx, pair.RefreshToken)
		if err != nil {
			logging.AuthWarn("refresh failed: %v", err)
			return nil, err
		}

		newPair := &creds.Pair{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
		}
		// Some backends do not rotate the refresh token.
		if newPair.RefreshToken == "" {
			newPair.RefreshToken = pair.RefreshToken
		}
		if err := c.creds.Save(newPair); err != nil {
			return nil, fmt.Errorf("failed to store refreshed credentials: %w", err)
		}

		logging.Auth("credentials refreshed")
		if c.onRefresh != nil {
			c.onRefresh()
		}
		return nil, nil
	})
	if shared {
		logging.AuthDebug("refresh shared with concurrent request")
	}
	return err
}

// publish sends one notification, tolerating a nil sink.
func (c *Client) publish(message string, severity notify.Severity) {
	if c.sink == nil {
		return
	}
	c.sink.Publish(notify.Notification{Message: message, Severity: severity})
}

// progressReader reports cumulative bytes read to a callback.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
