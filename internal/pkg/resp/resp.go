/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

Errors use the same `{error:{code,message}}` envelope the backend speaks, so the bridge
page and the client share one decoder.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code and user-visible message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondJSON is a generic response function used to set the Content-Type and send the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	_, _ = w.Write(response)
}

// RespondSuccess sends a successful HTTP response (HTTP 200 OK).
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, data)
}

// RespondError sends an HTTP response containing custom error information. Client-side
// codes without an HTTP status are reported as 502, since they describe an upstream failure.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrInternal)
	}

	status := customErr.Status
	if status == 0 {
		status = http.StatusBadGateway
	}

	RespondJSON(w, r, status, ErrorBody{Error: ErrorDetail{Code: customErr.Code, Message: customErr.Message}})
}

// RespondHTML sends a static HTML page.
func RespondHTML(w http.ResponseWriter, r *http.Request, httpStatus int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(page)
}
