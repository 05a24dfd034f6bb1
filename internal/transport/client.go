// Package transport performs single JSON requests against the manga API.
//
// A Client is built once from Options and never mutated afterwards, so it can
// be shared by every goroutine of a fan-out search.
package transport

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

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultTimeout matches the API's slow connector responses.
const DefaultTimeout = 45 * time.Second

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	// BaseURL is prefixed to every request path.
	BaseURL string

	// Timeout bounds each request. Zero means DefaultTimeout; negative disables it.
	Timeout time.Duration

	// TokenSource supplies the bearer credential. When it returns an error
	// the request is sent without Authorization.
	TokenSource oauth2.TokenSource

	// RateLimit caps requests per second across the client. Zero disables it.
	RateLimit float64

	UserAgent string

	// HTTPClient defaults to a new http.Client.
	HTTPClient *http.Client

	// OnUnauthorized is called for every 401 response, before the error is returned.
	OnUnauthorized func(*HTTPError)
}

// Client calls the manga API.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client from opts.
func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{opts: opts, http: hc}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// BaseURL returns the URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

// Get is shorthand for Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Do sends one request and decodes a JSON response into out (if non-nil).
// path must already be escaped.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &NetworkError{Method: method, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.TokenSource != nil {
		if tok, err := c.opts.TokenSource.Token(); err == nil && tok.AccessToken != "" {
			tok.SetAuthHeader(req)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body),
		}
		if herr.Status == http.StatusUnauthorized && c.opts.OnUnauthorized != nil {
			c.opts.OnUnauthorized(herr)
		}
		return herr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &NetworkError{Method: method, Path: path, Err: err}
		}
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from an
// error body, falling back to the trimmed text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Message
	}
	return strings.TrimSpace(string(b))
}
