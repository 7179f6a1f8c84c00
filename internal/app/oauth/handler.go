/*
Package oauth completes provider sign-in at the callback route.

The handler is a small state machine: it reads the callback location, materializes
a provider session, reconciles it with the backend and commits the resulting user to
the session store. The commit always happens before navigation so that the guard of
the destination route never observes an absent user.
*/
package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/realtime"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/app/session"
	"cfoclient/internal/app/user"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

const (
	reconcileTimeout = 15 * time.Second

	// cookieSettle is the pause between committing the user and navigating.
	cookieSettle = 300 * time.Millisecond

	// Back-offs of the session lookup when the callback carries neither code nor tokens.
	firstLookupDelay  = 500 * time.Millisecond
	secondLookupDelay = 1000 * time.Millisecond
)

// verificationTypes are the callback types sent by email verification links.
var verificationTypes = map[string]bool{
	"signup":       true,
	"email_change": true,
	"recovery":     true,
}

// Phase is the handler's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Reading
	Materializing
	Reconciling
	Committing
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Materializing:
		return "materializing"
	case Reconciling:
		return "reconciling"
	case Committing:
		return "committing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Provider materializes provider sessions. *realtime.Auth implements it.
type Provider interface {
	SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*realtime.Session, error)
	ExchangeCode(ctx context.Context, code string) (*realtime.Session, error)
	GetSession(ctx context.Context) (*realtime.Session, error)
}

// Store receives the reconciled user. *session.Store implements it.
type Store interface {
	SetDirect(u user.User)
	Refresh(ctx context.Context)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Callback is what the callback route received.
type Callback struct {
	Query    url.Values
	Fragment url.Values
}

// ParseCallback splits a callback location into its query and hash parameters.
func ParseCallback(loc *url.URL) Callback {
	cb := Callback{Query: loc.Query(), Fragment: url.Values{}}
	if loc.Fragment != "" {
		if frag, err := url.ParseQuery(loc.Fragment); err == nil {
			cb.Fragment = frag
		}
	}
	return cb
}

// param returns name from the query, else from the fragment.
func (c Callback) param(name string) string {
	if v := c.Query.Get(name); v != "" {
		return v
	}
	return c.Fragment.Get(name)
}

// Result is the outcome of one callback.
type Result struct {
	Phase Phase

	// Target is where the handler navigated; nil when it did not navigate.
	Target *routes.Target

	// Err is set when Phase is Failed.
	Err *errs.CustomError
}

// Handler completes the callback. Each Handler handles a single callback.
type Handler struct {
	provider Provider
	backend  *api.Client
	store    Store
	nav      routes.Navigator
	sleep    SleepFunc
	onPhase  func(Phase)
	phase    Phase
	logger   zerolog.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithSleep replaces the wait used for back-offs and cookie settling.
func WithSleep(fn SleepFunc) Option {
	return func(h *Handler) {
		h.sleep = fn
	}
}

// WithPhaseObserver reports every phase transition.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(h *Handler) {
		h.onPhase = fn
	}
}

// NewHandler creates a callback handler.
func NewHandler(provider Provider, backend *api.Client, store Store, nav routes.Navigator, opts ...Option) *Handler {
	h := &Handler{
		provider: provider,
		backend:  backend,
		store:    store,
		nav:      nav,
		sleep:    sleepContext,
		logger:   logx.Component("oauth-callback"),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phase returns the current phase.
func (h *Handler) Phase() Phase {
	return h.phase
}

func (h *Handler) enter(p Phase) {
	h.phase = p
	h.logger.Debug().Str("phase", p.String()).Msg("Callback phase")
	if h.onPhase != nil {
		h.onPhase(p)
	}
}

func (h *Handler) fail(customErr *errs.CustomError) Result {
	h.enter(Failed)
	h.logger.Warn().Str("code", customErr.Code).Msg(customErr.Message)
	return Result{Phase: Failed, Err: customErr}
}

func (h *Handler) navigate(t routes.Target) Result {
	h.nav.Navigate(t)
	h.enter(Done)
	return Result{Phase: Done, Target: &t}
}

// Handle runs the callback protocol to completion.
func (h *Handler) Handle(ctx context.Context, cb Callback) Result {
	h.enter(Reading)

	if providerErr := cb.param("error"); providerErr != "" {
		detail := cb.param("error_description")
		if detail == "" {
			detail = providerErr
		}
		return h.fail(errs.NewError(errs.ErrProvider, detail))
	}

	h.enter(Materializing)
	sess, err := h.materialize(ctx, cb)
	if err != nil {
		return h.fail(errs.As(err))
	}

	if sess == nil {
		if verificationTypes[cb.param("type")] {
			h.logger.Info().Str("type", cb.param("type")).Msg("Email verification completed")
			return h.navigate(routes.SignInConfirmed())
		}
		return h.fail(errs.NewError(errs.ErrProvider, "no session was established"))
	}

	if !sess.IsExternal() {
		h.logger.Info().Msg("Email provider session, verification completed")
		return h.navigate(routes.SignInConfirmed())
	}

	h.enter(Reconciling)
	return h.reconcile(ctx, sess)
}

// materialize obtains the provider session for the callback. A nil session with a nil
// error means none could be found.
func (h *Handler) materialize(ctx context.Context, cb Callback) (*realtime.Session, error) {
	if at := cb.Fragment.Get("access_token"); at != "" {
		return h.provider.SetSessionFromTokens(ctx, at, cb.Fragment.Get("refresh_token"))
	}

	if code := cb.Query.Get("code"); code != "" {
		sess, err := h.provider.ExchangeCode(ctx, code)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, realtime.ErrMissingVerifier) {
			h.logger.Info().Msg("Code verifier missing, looking for an existing session")
		} else {
			h.logger.Warn().Err(err).Msg("Code exchange failed, looking for an existing session")
		}

		sess, lookupErr := h.provider.GetSession(ctx)
		if lookupErr != nil || sess == nil {
			return nil, errs.NewError(errs.ErrProvider, "the authorization code could not be exchanged")
		}
		return sess, nil
	}

	for _, delay := range []time.Duration{firstLookupDelay, secondLookupDelay} {
		if err := h.sleep(ctx, delay); err != nil {
			return nil, errs.FromTransport(err)
		}
		sess, err := h.provider.GetSession(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Session lookup failed")
			continue
		}
		if sess != nil {
			return sess, nil
		}
	}

	return nil, nil
}

type reconcileUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type reconcileRequest struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         reconcileUser `json:"user"`
}

// reconcile posts the provider session to the backend, which answers with the
// canonical user and sets the session cookie.
func (h *Handler) reconcile(ctx context.Context, sess *realtime.Session) Result {
	payload := reconcileRequest{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User: reconcileUser{
			ID:        sess.User.ID,
			Email:     session.NormalizeEmail(sess.User.Email),
			FullName:  sess.User.FullName(),
			AvatarURL: sess.User.AvatarURL(),
		},
	}

	reqCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	res, err := h.backend.Do(reqCtx, http.MethodPost, api.GoogleCallbackPath, payload)
	cancel()
	if err != nil {
		return h.fail(errs.As(err))
	}

	switch {
	case res.OK():
		u, err := session.ParseUser(res.Body)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Reconciliation response carried no user")
			return h.fail(errs.NewError(errs.ErrInternal))
		}
		return h.commit(ctx, *u)

	case res.Status == http.StatusConflict:
		// The user already exists; the callback still counts as a sign-in.
		if u, err := session.ParseUser(res.Body); err == nil {
			return h.commit(ctx, *u)
		}
		h.logger.Info().Msg("Existing user reconciled without a user body")
		h.enter(Committing)
		h.store.Refresh(ctx)
		return h.navigate(routes.Target{Path: routes.Dashboard})
	}

	return h.fail(res.Err())
}

// commit publishes u to the store, lets the cookie settle, then navigates.
func (h *Handler) commit(ctx context.Context, u user.User) Result {
	h.enter(Committing)
	h.store.SetDirect(u)

	if err := h.sleep(ctx, cookieSettle); err != nil {
		h.logger.Debug().Err(err).Msg("Cookie settle wait interrupted")
	}

	h.logger.Info().Str("user_id", u.ID).Bool("profile_completed", u.ProfileCompleted).Msg("Provider sign-in reconciled")
	return h.navigate(routes.PostLogin(u.ProfileCompleted, ""))
}
