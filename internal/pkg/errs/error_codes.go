/*
Package errs provides the client's error taxonomy and application-level error codes.

Codes mirror the backend's `{error:{code,message}}` contract; client-only codes cover
failures that never reach the backend (network, timeouts, provider and subscription errors).
*/
package errs

// Backend codes, one per documented HTTP status.
const (
	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = "UNAUTHORIZED"

	// ErrForbidden is returned for 403 responses.
	ErrForbidden = "FORBIDDEN"

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = "NOT_FOUND"

	// ErrDuplicateEntry is returned for 409 responses.
	ErrDuplicateEntry = "DUPLICATE_ENTRY"

	// ErrFileTooLarge is returned for 413 responses and by client-side attachment checks.
	ErrFileTooLarge = "FILE_TOO_LARGE"

	// ErrValidation is returned for 422 responses and by client-side input checks.
	ErrValidation = "VALIDATION_ERROR"

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = "RATE_LIMITED"

	// ErrInternal is returned for 500 responses and anything unclassified.
	ErrInternal = "INTERNAL_ERROR"

	// ErrBadRequest is returned for 400 responses.
	ErrBadRequest = "BAD_REQUEST"

	// ErrInvalidFileType is returned when an attachment type is rejected.
	ErrInvalidFileType = "INVALID_FILE_TYPE"
)

// Client-side codes.
const (
	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = "NETWORK_ERROR"

	// ErrTimeout indicates the per-request deadline elapsed.
	ErrTimeout = "TIMEOUT"

	// ErrEmailNotConfirmed indicates a sign-in attempt for an account whose email is unconfirmed.
	ErrEmailNotConfirmed = "EMAIL_NOT_CONFIRMED"

	// ErrProvider indicates the external identity provider reported or caused a failure.
	ErrProvider = "PROVIDER_ERROR"

	// ErrSubscription indicates the realtime channel could not be established.
	ErrSubscription = "SUBSCRIPTION_FAILED"
)

// Kind is the tagged error taxonomy surfaced to views.
type Kind int

const (
	// KindInternal is any failure not covered by a more specific kind.
	KindInternal Kind = iota

	// KindAbsentSession is the expected outcome of a probe without a session. Not a failure.
	KindAbsentSession

	// KindAuthFailure covers rejected credentials.
	KindAuthFailure

	// KindUnconfirmedEmail is an auth failure caused by a pending email confirmation.
	KindUnconfirmedEmail

	// KindSessionExpired is a 401 on any request other than the probe and reconciliation.
	KindSessionExpired

	// KindNetwork covers transport failures and timeouts.
	KindNetwork

	// KindDuplicate covers duplicate registration and existing-user reconciliation.
	KindDuplicate

	// KindSubscription covers realtime channel failures.
	KindSubscription

	// KindValidation covers rejected input, locally or by the backend.
	KindValidation

	// KindForbidden covers 403 and 404 responses on scoped resources.
	KindForbidden

	// KindRateLimited covers 429 responses.
	KindRateLimited

	// KindProvider covers identity provider failures during the OAuth callback.
	KindProvider
)

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindAbsentSession:    "absent_session",
	KindAuthFailure:      "auth_failure",
	KindUnconfirmedEmail: "unconfirmed_email",
	KindSessionExpired:   "session_expired",
	KindNetwork:          "network",
	KindDuplicate:        "duplicate",
	KindSubscription:     "subscription",
	KindValidation:       "validation",
	KindForbidden:        "forbidden",
	KindRateLimited:      "rate_limited",
	KindProvider:         "provider",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}
