package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cfoclient/internal/app/localstore"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/pkg/randx"
)

const (
	// sessions expiring within this window are refreshed before use.
	expiryMargin = 10 * time.Second

	authTimeout = 15 * time.Second
)

// ErrMissingVerifier is returned by ExchangeCode when no PKCE verifier was persisted
// for this client, e.g. the flow was started in another process.
var ErrMissingVerifier = errors.New("realtime: code verifier not found")

// Auth talks to the provider auth endpoints and persists the provider session.
type Auth struct {
	service

	store      localstore.Store
	storageKey string
	now        func() time.Time

	// mu serializes refreshes of the persisted session.
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewAuth creates the provider auth client for the project at baseURL.
func NewAuth(baseURL, anonKey string, store localstore.Store) *Auth {
	return &Auth{
		service:    newService(baseURL, anonKey, authTimeout, 1<<20, providerError),
		store:      store,
		storageKey: StorageKey(baseURL),
		now:        time.Now,
		logger:     logx.Component("realtime-auth"),
	}
}

// StorageKey derives the persistence key from the project URL: sb-<ref>-auth-token.
func StorageKey(baseURL string) string {
	ref := "local"
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		ref = strings.SplitN(u.Hostname(), ".", 2)[0]
	}
	return "sb-" + ref + "-auth-token"
}

func (a *Auth) verifierKey() string {
	return a.storageKey + "-code-verifier"
}

// AuthorizeURL starts a PKCE authorization flow with provider and returns the URL
// the user must open. The verifier is persisted for ExchangeCode.
func (a *Auth) AuthorizeURL(ctx context.Context, provider, redirectTo string) (string, error) {
	verifier, err := randx.CodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	if err := a.store.Set(ctx, a.verifierKey(), verifier); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", randx.CodeChallenge(verifier))
	q.Set("code_challenge_method", "s256")

	return a.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// ExchangeCode trades an authorization code for a session using the persisted verifier.
func (a *Auth) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	verifier, err := a.store.Get(ctx, a.verifierKey())
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, ErrMissingVerifier
	}
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}

	var s Session
	if err := a.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", payload, &s); err != nil {
		return nil, err
	}

	if err := a.store.Delete(ctx, a.verifierKey()); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to delete used code verifier")
	}

	return a.persist(ctx, &s)
}

// SetSessionFromTokens materializes a session from implicit-grant tokens by
// resolving the user they belong to.
func (a *Auth) SetSessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" {
		return nil, errs.NewError(errs.ErrProvider, "missing access token")
	}

	var u ProviderUser
	if err := a.doJSON(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return nil, err
	}

	s := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         u,
	}

	return a.persist(ctx, s)
}

// GetSession returns the persisted session, refreshing it when it is about to
// expire. A nil session with a nil error means there is none.
func (a *Auth) GetSession(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.load(ctx)
	if err != nil || s == nil {
		return nil, err
	}

	exp := s.Expiry()
	if exp.IsZero() || exp.After(a.now().Add(expiryMargin)) {
		return s, nil
	}

	if s.RefreshToken == "" {
		a.logger.Info().Msg("Provider session expired without a refresh token")
		_ = a.store.Delete(ctx, a.storageKey)
		return nil, nil
	}

	refreshed, err := a.refresh(ctx, s.RefreshToken)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Provider session refresh failed")
		if customErr := errs.As(err); customErr.Status >= 400 && customErr.Status < 500 {
			_ = a.store.Delete(ctx, a.storageKey)
		}
		return nil, err
	}

	return refreshed, nil
}

// AccessToken returns the current provider access token, or the anonymous key when
// no session exists. It is used to authorize REST calls and channel joins.
func (a *Auth) AccessToken(ctx context.Context) string {
	s, err := a.GetSession(ctx)
	if err != nil || s == nil {
		return a.anonKey
	}
	return s.AccessToken
}

// SignOut forgets the persisted provider session.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.store.Delete(ctx, a.storageKey)
}

func (a *Auth) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	payload := map[string]string{"refresh_token": refreshToken}
	if err := a.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", payload, &s); err != nil {
		return nil, err
	}
	return a.persist(ctx, &s)
}

func (a *Auth) load(ctx context.Context) (*Session, error) {
	raw, err := a.store.Get(ctx, a.storageKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		a.logger.Warn().Err(err).Msg("Discarding unreadable persisted session")
		_ = a.store.Delete(ctx, a.storageKey)
		return nil, nil
	}
	return &s, nil
}

func (a *Auth) persist(ctx context.Context, s *Session) (*Session, error) {
	s.normalize(a.now())

	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, a.storageKey, string(data)); err != nil {
		return nil, err
	}
	return s, nil
}

// doJSON sends a request to the auth endpoints and decodes a success body into out.
func (a *Auth) doJSON(ctx context.Context, method, path, bearer string, payload, out any) error {
	data, err := a.send(ctx, call{method: method, path: path, bearer: bearer, payload: payload})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.NewError(errs.ErrProvider, "unreadable response")
	}
	return nil
}

// providerError maps an auth endpoint failure. The auth service reports
// `{error, error_description}` or `{msg}` rather than the backend shape.
func providerError(status int, body []byte) *errs.CustomError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	detail := payload.ErrorDescription
	for _, candidate := range []string{payload.Msg, payload.Message, payload.Error} {
		if detail == "" {
			detail = candidate
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}

	customErr := errs.NewError(errs.ErrProvider, detail)
	customErr.Status = status
	return customErr
}
