/*
Package api is the HTTP client for the competition backend.

Every request carries the ambient session cookie from the client's cookie jar; the
client never attaches or reads Authorization headers for session purposes. Responses
are fanned out to observers (the auth interceptor among them) before the caller sees
them, and non-success bodies are decoded into *errs.CustomError.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

// Backend paths used by the session layer.
const (
	MePath             = "/api/cfo/auth/me"
	LoginPath          = "/api/cfo/auth/login"
	RegisterPath       = "/api/cfo/auth/register"
	LogoutPath         = "/api/cfo/auth/logout"
	GoogleCallbackPath = "/api/cfo/auth/google-callback"
)

// sameOrigin is used when no backend base URL is configured.
const sameOrigin = "http://localhost"

// maxBodyBytes bounds how much of a response body is buffered.
const maxBodyBytes = 4 << 20

// ErrSealed is returned by Use once the client has issued its first request.
var ErrSealed = errors.New("api: observers must be registered before the first request")

// Response is a fully-read backend response.
type Response struct {
	// Method and Path identify the originating request. Path excludes the base URL.
	Method string
	Path   string

	// Status is the HTTP status code.
	Status int

	// Body is the buffered response body.
	Body []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Err returns the decoded error for a non-success response, or nil.
func (r *Response) Err() *errs.CustomError {
	if r.OK() {
		return nil
	}
	return errs.FromResponse(r.Status, r.Body)
}

// Decode unmarshals the body into out. Empty bodies leave out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Observer is notified of every response, in registration order.
type Observer func(res *Response)

// Client issues backend requests with ambient credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// mu protects header, observers and sealed.
	mu        sync.RWMutex
	header    http.Header
	observers []Observer
	sealed    bool
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets a client-wide ceiling on request duration. Per-operation
// deadlines are applied through the request context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport replaces the underlying round tripper. It is still wrapped by the
// request logger.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = &logx.Transport{Base: rt}
	}
}

// NewClient constructs a client for baseURL. An empty base means same-origin.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = sameOrigin
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Jar:       jar,
			Transport: &logx.Transport{},
			Timeout:   30 * time.Second,
		},
		header: http.Header{
			"Accept": []string{"application/json"},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Use registers a response observer. The chain is fixed once the first request is sent.
func (c *Client) Use(obs Observer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	c.observers = append(c.observers, obs)
	return nil
}

// StripAuthorization removes any default Authorization header. Nothing in this client
// sets one; logout calls it to clear headers a host application may have added.
func (c *Client) StripAuthorization() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header.Del("Authorization")
}

// Do sends a request and returns the buffered response. The returned error is
// non-nil only when no HTTP response was obtained; it is always a *errs.CustomError.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errs.NewError(errs.ErrInternal)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errs.NewError(errs.ErrInternal)
	}

	c.mu.Lock()
	c.sealed = true
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpRes, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.FromTransport(err)
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes))
	if err != nil {
		return nil, errs.FromTransport(err)
	}

	res := &Response{
		Method: method,
		Path:   path,
		Status: httpRes.StatusCode,
		Body:   data,
	}

	for _, obs := range observers {
		obs(res)
	}

	return res, nil
}

// DoJSON sends a request and decodes a successful body into out. Non-success
// statuses are returned as *errs.CustomError.
func (c *Client) DoJSON(ctx context.Context, method, path string, payload, out any) error {
	res, err := c.Do(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if customErr := res.Err(); customErr != nil {
		return customErr
	}

	if err := res.Decode(out); err != nil {
		logx.Warn("Failed to decode response body", "path", path, "error", err.Error())
		return errs.NewError(errs.ErrInternal)
	}

	return nil
}
