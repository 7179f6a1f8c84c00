/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the HTTP logging hooks: a client-side RoundTripper that records every
outbound API call, and a chi-compatible middleware for the loopback callback server.
Request bodies, cookies and query strings are never logged.
*/
package logx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Transport wraps an http.RoundTripper and logs method, path, status and latency
// of each outbound request.
type Transport struct {
	// Base is the underlying transport. http.DefaultTransport is used when nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	logger := Logger().With().
		Str("component", "http-client").
		Str("request_method", r.Method).
		Str("request_path", r.URL.Path).
		Logger()

	t1 := time.Now()
	res, err := base.RoundTrip(r)
	if err != nil {
		logger.Warn().Err(err).Dur("latency", time.Since(t1)).Msg("Request failed")
		return nil, err
	}

	logEvent := logger.Debug()
	if res.StatusCode >= 500 {
		logEvent = logger.Error()
	} else if res.StatusCode >= 400 && res.StatusCode != http.StatusUnauthorized {
		logEvent = logger.Warn()
	}

	logEvent.
		Int("status", res.StatusCode).
		Dur("latency", time.Since(t1)).
		Msg("Request completed")

	return res, nil
}

// RequestLogger returns an HTTP middleware that logs each inbound request on the
// loopback server and injects a request-scoped logger into the context.
func RequestLogger() func(next http.Handler) http.Handler {
	baseLogger := Logger()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger := baseLogger.With().
				Str("component", "loopback").
				Str("request_id", requestID).
				Str("request_method", r.Method).
				Str("request_path", r.URL.Path).
				Logger()

			r = r.WithContext(logger.WithContext(r.Context()))

			t1 := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()

			logEvent := logger.Info()
			if status >= 500 {
				logEvent = logger.Error()
			} else if status >= 400 {
				logEvent = logger.Warn()
			}

			logEvent.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(t1)).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}
