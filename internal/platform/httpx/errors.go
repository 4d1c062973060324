package httpx

import (
	"errors"
	"net/http"
)

// ErrValidation marks malformed request input.
var ErrValidation = errors.New("validation failed")

// RespondError maps request errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
