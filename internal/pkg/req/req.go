/*
Package req provides helper functions for HTTP request parsing and data binding.

The loopback callback server only accepts small JSON bodies; BindJSON enforces the
content type, a body size cap and a single JSON value.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cfoclient/internal/pkg/errs"
)

// MaxBodySize caps request bodies accepted by the loopback server.
const MaxBodySize int64 = 16 << 10 // 16 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrBadRequest).WithMessage("Content-Type must be application/json.")
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewError(errs.ErrFileTooLarge).WithMessage("Request body is too large.")
		}
		return errs.NewError(errs.ErrBadRequest).WithMessage("Invalid JSON format.")
	}

	if decoder.More() {
		return errs.NewError(errs.ErrBadRequest).WithMessage("Request body must contain a single JSON object.")
	}

	return nil
}
