package errs

import "net/http"

// errorMap stores the template CustomError for every known code.
// Messages are the user-visible defaults; decoded backend messages take precedence.
var errorMap = map[string]CustomError{
	ErrUnauthorized:    {Code: ErrUnauthorized, Kind: KindSessionExpired, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:       {Code: ErrForbidden, Kind: KindForbidden, Message: "You do not have access to this resource.", Status: http.StatusForbidden},
	ErrNotFound:        {Code: ErrNotFound, Kind: KindForbidden, Message: "The requested resource was not found.", Status: http.StatusNotFound},
	ErrDuplicateEntry:  {Code: ErrDuplicateEntry, Kind: KindDuplicate, Message: "This record already exists.", Status: http.StatusConflict},
	ErrFileTooLarge:    {Code: ErrFileTooLarge, Kind: KindValidation, Message: "File is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrValidation:      {Code: ErrValidation, Kind: KindValidation, Message: "Some fields are invalid.", Status: http.StatusUnprocessableEntity},
	ErrRateLimited:     {Code: ErrRateLimited, Kind: KindRateLimited, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrInternal:        {Code: ErrInternal, Kind: KindInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrBadRequest:      {Code: ErrBadRequest, Kind: KindValidation, Message: "The request could not be processed.", Status: http.StatusBadRequest},
	ErrInvalidFileType: {Code: ErrInvalidFileType, Kind: KindValidation, Message: "This file type is not allowed.", Status: http.StatusBadRequest},

	ErrNetwork:           {Code: ErrNetwork, Kind: KindNetwork, Message: "Network error. Check your connection and try again."},
	ErrTimeout:           {Code: ErrTimeout, Kind: KindNetwork, Message: "The server took too long to respond. Please try again."},
	ErrEmailNotConfirmed: {Code: ErrEmailNotConfirmed, Kind: KindUnconfirmedEmail, Message: "Please confirm your email address. Check your inbox for the confirmation link."},
	ErrProvider:          {Code: ErrProvider, Kind: KindProvider, Message: "Sign-in with the external provider failed: %s"},
	ErrSubscription:      {Code: ErrSubscription, Kind: KindSubscription, Message: "Connecting to chat..."},
}

// statusCodes maps HTTP statuses to codes for bodies that carry none.
var statusCodes = map[int]string{
	http.StatusBadRequest:            ErrBadRequest,
	http.StatusUnauthorized:          ErrUnauthorized,
	http.StatusForbidden:             ErrForbidden,
	http.StatusNotFound:              ErrNotFound,
	http.StatusConflict:              ErrDuplicateEntry,
	http.StatusRequestEntityTooLarge: ErrFileTooLarge,
	http.StatusUnprocessableEntity:   ErrValidation,
	http.StatusTooManyRequests:       ErrRateLimited,
	http.StatusInternalServerError:   ErrInternal,
}

// CodeForStatus returns the code documented for an HTTP status.
// Unlisted 4xx statuses map to ErrBadRequest, everything else to ErrInternal.
func CodeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return ErrBadRequest
	}
	return ErrInternal
}
