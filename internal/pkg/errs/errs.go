/*
Package errs provides the client's error taxonomy and application-level error codes.

This file defines CustomError, the single error type returned across component
boundaries. It carries the backend code, the taxonomy Kind, a user-visible message
and the HTTP status when one exists.
*/
package errs

import (
	"errors"
	"fmt"
	"strings"

	"cfoclient/internal/pkg/logx"
)

// CustomError is the error structure used throughout the client.
type CustomError struct {
	// Code is the backend or client-side error code (see constants).
	Code string

	// Kind classifies the error for views.
	Kind Kind

	// Message is the user-visible description.
	Message string

	// Status is the HTTP status that produced the error, or 0 for client-side failures.
	Status int
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a *CustomError with the same code.
func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying msg. Empty messages keep the original.
func (e *CustomError) WithMessage(msg string) *CustomError {
	cp := *e
	if strings.TrimSpace(msg) != "" {
		cp.Message = msg
	}
	return &cp
}

// WithKind returns a copy classified as kind.
func (e *CustomError) WithKind(kind Kind) *CustomError {
	cp := *e
	cp.Kind = kind
	return &cp
}

// NewError constructs a *CustomError from a predefined code.
// Optional details are applied printf-style when the template contains a verb.
// Unknown codes yield ErrInternal.
func NewError(code string, details ...any) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Warn("Unknown error code requested", "requested_code", code)
		internal := errorMap[ErrInternal]
		return &internal
	}

	customErr := templateErr

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn("Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code)
		}
	} else if strings.Contains(customErr.Message, "%s") {
		customErr.Message = strings.TrimSuffix(strings.ReplaceAll(customErr.Message, "%s", ""), ": ")
	}

	return &customErr
}

// As extracts a *CustomError from err, wrapping foreign errors as ErrInternal.
func As(err error) *CustomError {
	if err == nil {
		return nil
	}
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return NewError(ErrInternal)
}

// IsKind reports whether err is a *CustomError of the given kind.
func IsKind(err error, kind Kind) bool {
	var customErr *CustomError
	return errors.As(err, &customErr) && customErr.Kind == kind
}
