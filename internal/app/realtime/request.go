package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

// service holds the request plumbing shared by the auth and table clients. Every
// call carries the project's anonymous key; failures are *errs.CustomError.
type service struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client

	// maxBody caps how much of a response body is read.
	maxBody int64

	// errorOf maps a non-2xx response to the client's error shape.
	errorOf func(status int, body []byte) *errs.CustomError
}

func newService(baseURL, anonKey string, timeout time.Duration, maxBody int64, errorOf func(int, []byte) *errs.CustomError) service {
	return service{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &logx.Transport{},
		},
		maxBody: maxBody,
		errorOf: errorOf,
	}
}

// call describes one request. An empty bearer means the anonymous key.
type call struct {
	method  string
	path    string
	bearer  string
	payload any
	header  http.Header
}

// send performs c and returns the body of a 2xx response.
func (s *service) send(ctx context.Context, c call) ([]byte, error) {
	var body io.Reader
	if c.payload != nil {
		data, err := json.Marshal(c.payload)
		if err != nil {
			return nil, errs.NewError(errs.ErrInternal)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, s.baseURL+c.path, body)
	if err != nil {
		return nil, errs.NewError(errs.ErrInternal)
	}

	bearer := c.bearer
	if bearer == "" {
		bearer = s.anonKey
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if c.payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errs.FromTransport(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, s.maxBody))
	if err != nil {
		return nil, errs.FromTransport(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, s.errorOf(res.StatusCode, data)
	}

	return data, nil
}
