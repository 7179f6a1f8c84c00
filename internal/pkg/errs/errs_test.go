package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromResponseStructuredEnvelope(t *testing.T) {
	body := []byte(`{"error":{"code":"DUPLICATE_ENTRY","message":"Email already registered."}}`)

	err := FromResponse(http.StatusConflict, body)

	assert.Equal(t, ErrDuplicateEntry, err.Code)
	assert.Equal(t, KindDuplicate, err.Kind)
	assert.Equal(t, "Email already registered.", err.Message)
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromResponseDerivesCodeFromStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusUnauthorized:          ErrUnauthorized,
		http.StatusForbidden:             ErrForbidden,
		http.StatusNotFound:              ErrNotFound,
		http.StatusConflict:              ErrDuplicateEntry,
		http.StatusRequestEntityTooLarge: ErrFileTooLarge,
		http.StatusUnprocessableEntity:   ErrValidation,
		http.StatusTooManyRequests:       ErrRateLimited,
		http.StatusInternalServerError:   ErrInternal,
		http.StatusBadGateway:            ErrInternal,
		http.StatusTeapot:                ErrBadRequest,
	}

	for status, code := range cases {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			err := FromResponse(status, nil)
			assert.Equal(t, code, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestFromResponseDetailBodies(t *testing.T) {
	err := FromResponse(http.StatusUnauthorized, []byte(`{"detail":"Incorrect email or password"}`))
	assert.Equal(t, ErrUnauthorized, err.Code)
	assert.Equal(t, "Incorrect email or password", err.Message)

	err = FromResponse(http.StatusUnprocessableEntity, []byte(`{"detail":[{"msg":"field required"}]}`))
	assert.Equal(t, ErrValidation, err.Code)
	assert.Equal(t, "field required", err.Message)

	err = FromResponse(http.StatusBadRequest, []byte(`{"error":"bad input"}`))
	assert.Equal(t, ErrBadRequest, err.Code)
	assert.Equal(t, "bad input", err.Message)
}

func TestFromResponseUnknownCodeFallsBackToStatus(t *testing.T) {
	err := FromResponse(http.StatusForbidden, []byte(`{"error":{"code":"SOMETHING_NEW","message":"nope"}}`))
	assert.Equal(t, ErrForbidden, err.Code)
	assert.Equal(t, "nope", err.Message)
}

func TestFromTransportClassifiesTimeouts(t *testing.T) {
	assert.Equal(t, ErrTimeout, FromTransport(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrTimeout, FromTransport(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)).Code)
	assert.Equal(t, ErrNetwork, FromTransport(errors.New("connection refused")).Code)
	assert.Equal(t, KindNetwork, FromTransport(errors.New("connection refused")).Kind)
	assert.Nil(t, FromTransport(nil))
}

func TestCustomErrorIsComparesCodes(t *testing.T) {
	err := fmt.Errorf("login: %w", NewError(ErrRateLimited))

	assert.True(t, errors.Is(err, NewError(ErrRateLimited)))
	assert.False(t, errors.Is(err, NewError(ErrInternal)))
	assert.True(t, IsKind(err, KindRateLimited))
}

func TestNewErrorFormatsDetails(t *testing.T) {
	assert.Equal(t, "Sign-in with the external provider failed: access_denied", NewError(ErrProvider, "access_denied").Message)
	assert.Equal(t, "Sign-in with the external provider failed", NewError(ErrProvider).Message)
	assert.Equal(t, ErrInternal, NewError("NOT_A_CODE").Code)
}
