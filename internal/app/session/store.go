/*
Package session holds the signed-in user for the lifetime of the process.

The Store is the only writer of the user record. It populates it from the backend
session probe, from sign-in responses, or directly from the OAuth callback handler
after reconciliation, and notifies observers of every change in program order.
Operations never return Go errors to callers; they return tagged results.
*/
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/user"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

// Timeouts bounds each session operation.
type Timeouts struct {
	Probe    time.Duration
	Login    time.Duration
	Register time.Duration
	Logout   time.Duration
}

// DefaultTimeouts are the per-request deadlines used in production.
var DefaultTimeouts = Timeouts{
	Probe:    10 * time.Second,
	Login:    10 * time.Second,
	Register: 15 * time.Second,
	Logout:   5 * time.Second,
}

// State is an immutable snapshot of the store.
type State struct {
	// User is nil when no session is known.
	User *user.User

	// Loading is true while an auth operation is in flight.
	Loading bool

	// Initialized becomes true once the first probe has completed and never reverts.
	Initialized bool
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool {
	return s.User != nil
}

type observer struct {
	id int
	fn func(State)
}

// Store is the process-wide session holder.
type Store struct {
	api      *api.Client
	timeouts Timeouts
	logger   zerolog.Logger

	// mu protects the fields below.
	mu          sync.RWMutex
	user        *user.User
	loading     bool
	initialized bool

	// epoch increments on every user mutation so a probe started earlier cannot
	// overwrite a newer sign-in or sign-out.
	epoch uint64

	// notifyMu serializes mutate+notify so observers see changes in program order.
	notifyMu sync.Mutex

	obsMu     sync.Mutex
	observers []observer
	nextObsID int

	initOnce sync.Once
}

// Option customizes a Store.
type Option func(*Store)

// WithTimeouts overrides DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Store) {
		s.timeouts = t
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a store that starts in the loading, uninitialized state.
func NewStore(client *api.Client, opts ...Option) *Store {
	s := &Store{
		api:      client,
		timeouts: DefaultTimeouts,
		logger:   logx.Component("session"),
		loading:  true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := State{Loading: s.loading, Initialized: s.initialized}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// User returns the signed-in user, if any.
func (s *Store) User() (user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return user.User{}, false
	}
	return *s.user, true
}

// Subscribe registers fn to receive every state change. Observers run synchronously
// in registration order and must not call mutating store methods.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()

		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// mutate applies fn under the state lock and notifies observers when it reports a change.
func (s *Store) mutate(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	st := s.snapshotLocked()
	s.mu.Unlock()

	if !changed {
		return
	}

	s.obsMu.Lock()
	observers := append([]observer(nil), s.observers...)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(st)
	}
}

func (s *Store) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.epoch
}

// setUserLocked replaces the user and bumps the epoch. Callers hold mu.
func (s *Store) setUserLocked(u *user.User) bool {
	s.epoch++
	if u == nil && s.user == nil {
		return false
	}
	if u != nil {
		cp := *u
		u = &cp
	}
	s.user = u
	return true
}

// Initialize runs the session probe once per process. Later calls are no-ops.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		epoch := s.currentEpoch()
		u := s.probe(ctx)

		s.mutate(func() bool {
			if epoch == s.epoch {
				s.setUserLocked(u)
			}
			s.initialized = true
			s.loading = false
			return true
		})

		s.logger.Info().Bool("authenticated", u != nil).Msg("Session initialized")
	})
}

// Refresh re-runs the session probe without touching the initialized flag.
func (s *Store) Refresh(ctx context.Context) {
	epoch := s.currentEpoch()

	u := s.probe(ctx)

	s.mutate(func() bool {
		if epoch != s.epoch {
			s.logger.Debug().Msg("Discarding stale probe result")
			return false
		}
		return s.setUserLocked(u)
	})
}

// probe asks the backend for the current user. Every failure is treated as an
// absent session.
func (s *Store) probe(ctx context.Context) *user.User {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Probe)
	defer cancel()

	res, err := s.api.Do(ctx, http.MethodGet, api.MePath, nil)
	if err != nil {
		if errs.IsKind(err, errs.KindNetwork) {
			s.logger.Warn().Err(err).Msg("Session probe failed")
		} else {
			s.logger.Error().Err(err).Msg("Session probe could not be sent")
		}
		return nil
	}

	switch {
	case res.Status == http.StatusUnauthorized:
		return nil
	case !res.OK():
		s.logger.Error().Err(res.Err()).Int("status", res.Status).Msg("Session probe returned an error")
		return nil
	}

	parsed, parseErr := parseUser(res.Body)
	if parseErr != nil {
		s.logger.Error().Err(parseErr).Msg("Session probe returned an unreadable user")
		return nil
	}

	return parsed
}

// SetDirect installs a user reconciled by the OAuth callback handler.
func (s *Store) SetDirect(u user.User) {
	s.mutate(func() bool {
		return s.setUserLocked(&u)
	})
}

// Clear removes the user. The auth interceptor calls it on session expiry.
func (s *Store) Clear() {
	s.mutate(func() bool {
		return s.setUserLocked(nil)
	})
}

// LoginResult is the tagged outcome of Login.
type LoginResult struct {
	OK                   bool
	ProfileCompleted     bool
	RequiresConfirmation bool
	Err                  *errs.CustomError
}

// Login signs in with email and password. The email is trimmed and lowercased.
// Credentials are never retained after the request.
func (s *Store) Login(ctx context.Context, email, password string) LoginResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Login)
	defer cancel()

	s.setLoading(true)
	defer s.setLoading(false)

	payload := map[string]string{
		"email":    NormalizeEmail(email),
		"password": password,
	}

	res, err := s.api.Do(ctx, http.MethodPost, api.LoginPath, payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Login request failed")
		return LoginResult{Err: errs.As(err)}
	}

	if !res.OK() {
		customErr := res.Err()
		if isUnconfirmed(customErr.Message) {
			return LoginResult{
				RequiresConfirmation: true,
				Err:                  errs.NewError(errs.ErrEmailNotConfirmed).WithMessage(customErr.Message),
			}
		}
		return LoginResult{Err: customErr.WithKind(errs.KindAuthFailure)}
	}

	u, parseErr := parseUser(res.Body)
	if parseErr != nil {
		s.logger.Error().Err(parseErr).Msg("Login response carried no user")
		return LoginResult{Err: errs.NewError(errs.ErrInternal)}
	}

	s.mutate(func() bool {
		return s.setUserLocked(u)
	})

	return LoginResult{OK: true, ProfileCompleted: u.ProfileCompleted}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     user.Role
}

// RegisterResult is the tagged outcome of Register.
type RegisterResult struct {
	OK      bool
	Email   string
	Message string
	Err     *errs.CustomError
}

// RegisterSuccessMessage is shown after a registration that awaits email confirmation.
const RegisterSuccessMessage = "Registration successful. Please check your email to confirm your account."

// DuplicateEmailMessage is shown when the email is already registered.
const DuplicateEmailMessage = "This email is already registered. Please sign in instead."

// Register creates an account. It never signs the user in: the email must be
// confirmed first.
func (s *Store) Register(ctx context.Context, in RegisterInput) RegisterResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Register)
	defer cancel()

	role := in.Role
	if role == "" {
		role = user.RoleParticipant
	}
	if !role.Valid() {
		return RegisterResult{Err: errs.NewError(errs.ErrValidation).WithMessage("Unknown role.")}
	}

	email := NormalizeEmail(in.Email)
	payload := map[string]string{
		"email":     email,
		"password":  in.Password,
		"full_name": strings.TrimSpace(in.FullName),
		"role":      string(role),
	}

	res, err := s.api.Do(ctx, http.MethodPost, api.RegisterPath, payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Registration request failed")
		return RegisterResult{Err: errs.As(err)}
	}

	if !res.OK() {
		customErr := res.Err()
		if res.Status == http.StatusConflict || strings.Contains(strings.ToLower(customErr.Message), "already registered") {
			dup := errs.NewError(errs.ErrDuplicateEntry).WithMessage(DuplicateEmailMessage)
			dup.Status = res.Status
			return RegisterResult{Err: dup}
		}
		return RegisterResult{Err: customErr}
	}

	return RegisterResult{OK: true, Email: email, Message: RegisterSuccessMessage}
}

// Logout ends the session. The user is cleared regardless of the server outcome.
func (s *Store) Logout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Logout)
	defer cancel()

	res, err := s.api.Do(ctx, http.MethodPost, api.LogoutPath, nil)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("Logout request failed; clearing local session anyway")
	case !res.OK():
		s.logger.Warn().Int("status", res.Status).Msg("Logout rejected; clearing local session anyway")
	}

	s.api.StripAuthorization()
	s.Clear()
}

func (s *Store) setLoading(v bool) {
	s.mutate(func() bool {
		if s.loading == v {
			return false
		}
		s.loading = v
		return true
	})
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUnconfirmed(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "not confirmed") || strings.Contains(m, "confirm")
}

var errNoUser = errors.New("response carries no user")

// parseUser accepts either `{user: {...}, profile_completed}` or a bare user object.
// A top-level profile_completed overrides the nested one; a missing one is false.
func parseUser(body []byte) (*user.User, error) {
	var envelope struct {
		User             *user.User `json:"user"`
		ProfileCompleted *bool      `json:"profile_completed"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	if envelope.User != nil {
		u := *envelope.User
		if envelope.ProfileCompleted != nil {
			u.ProfileCompleted = *envelope.ProfileCompleted
		}
		if u.ID == "" {
			return nil, errNoUser
		}
		return &u, nil
	}

	var flat user.User
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	if flat.ID == "" {
		return nil, errNoUser
	}
	return &flat, nil
}

// ParseUser exposes the response decoding rules to the OAuth callback handler.
func ParseUser(body []byte) (*user.User, error) {
	return parseUser(body)
}
