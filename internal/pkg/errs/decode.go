package errs

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
)

// FromResponse builds a CustomError from a non-success response.
// It understands the `{error:{code,message}}` envelope, a bare `{error:"..."}` string,
// and the framework-style `{detail: "..."}` / `{detail: [{msg}]}` bodies.
func FromResponse(status int, body []byte) *CustomError {
	code, message := parseBody(body)

	if _, known := errorMap[code]; !known {
		code = CodeForStatus(status)
	}

	customErr := NewError(code).WithMessage(message)
	customErr.Status = status
	return customErr
}

// FromTransport classifies an error returned before any HTTP response arrived.
func FromTransport(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrTimeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(ErrTimeout)
	}

	return NewError(ErrNetwork)
}

func parseBody(body []byte) (code, message string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		return "", ""
	}

	if len(envelope.Error) > 0 {
		var structured struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &structured) == nil {
			return strings.TrimSpace(structured.Code), structured.Message
		}

		var plain string
		if json.Unmarshal(envelope.Error, &plain) == nil {
			return "", plain
		}
	}

	if len(envelope.Detail) > 0 {
		var plain string
		if json.Unmarshal(envelope.Detail, &plain) == nil {
			return "", plain
		}

		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &items) == nil && len(items) > 0 {
			return ErrValidation, items[0].Msg
		}
	}

	return "", envelope.Message
}
