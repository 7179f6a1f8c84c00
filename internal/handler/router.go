/*
Package handler provides the loopback HTTP server that receives the identity
provider's redirect for the terminal client.

This file defines the main Router, applying request logging, panic recovery and
per-IP rate limiting before delegating to the callback handlers.
*/
package handler

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cfoclient/internal/app/routes"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/limiter"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/pkg/resp"
)

const (
	CallbackInterval = 2 * time.Second
	CallbackBurst    = 5
)

// Router sets up the loopback routing table. A callback is completed at most once
// per Router. Idle rate-limit buckets are evicted until ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	callbackLimiter := limiter.NewKeyedLimiter(CallbackInterval, CallbackBurst)
	go callbackLimiter.RunCleanup(ctx, limiter.CleanupInterval)
	gate := &callbackGate{deps: deps}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "cfoclient callback",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route(routes.AuthCallback, func(cb chi.Router) {
		cb.Use(rateLimit(callbackLimiter))
		cb.Get("/", handleCallbackLanding(gate))
		cb.Post("/complete", handleCallbackComplete(gate))
	})

	return r
}

// rateLimit rejects requests once the caller's IP exhausts its bucket.
func rateLimit(l *limiter.KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if ip == "" {
				ip = "unknown_ip"
			}

			if !l.Allow(ip) {
				logx.Warn("Callback request rejected: Rate limit exceeded.", "ip", ip)
				resp.RespondError(w, r, errs.NewError(errs.ErrRateLimited))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
