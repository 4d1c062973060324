package auth

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials indicates a rejected login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoActiveSession is returned by operations that need a signed-in identity.
	ErrNoActiveSession = errors.New("no active session")
	// ErrEmailTaken indicates signup or profile edit collided with an existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInFlight is returned when a login or signup is already outstanding.
	ErrInFlight = errors.New("authentication already in progress")
	// ErrSuperseded marks a backend response that arrived after a newer mutation.
	ErrSuperseded = errors.New("authentication superseded")
	// ErrInvalidResetToken indicates an unknown or expired password reset token.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	// ErrInvalidToken indicates a bearer credential failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRejected is the base of backend rejections that carry their own message.
	ErrRejected = errors.New("request rejected")
)

// ValidationError carries field level messages keyed by the json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for name.
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// TransportError wraps network, server and timeout faults.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "server error"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectionError is a backend refusal with a user facing message.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// UserMessage renders err the way it is shown inline to the user.
func UserMessage(err error) string {
	var (
		verr *ValidationError
		terr *TransportError
		rerr *RejectionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Please correct the highlighted fields"
	case errors.As(err, &terr):
		return "server error"
	case errors.As(err, &rerr):
		return rerr.Message
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists"
	case errors.Is(err, ErrNoActiveSession):
		return "Please log in to continue"
	case errors.Is(err, ErrInFlight):
		return "Please wait for the current request to finish"
	case errors.Is(err, ErrInvalidResetToken):
		return "This reset link is invalid or has expired"
	case errors.Is(err, ErrSuperseded):
		return "The request was cancelled"
	}
	return "An unexpected error occurred. Please try again."
}

// expected reports whether err is a domain outcome rather than a transport fault.
func expected(err error) bool {
	var (
		verr *ValidationError
		terr *TransportError
	)
	if errors.As(err, &verr) || errors.As(err, &terr) {
		return true
	}
	for _, target := range []error{
		ErrInvalidCredentials, ErrEmailTaken, ErrInvalidResetToken,
		ErrInvalidToken, ErrRejected, ErrNoActiveSession,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Status maps err to the HTTP status used by the JSON endpoints.
func Status(err error) int {
	var (
		verr *ValidationError
		terr *TransportError
		rerr *RejectionError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr), errors.As(err, &rerr):
		return http.StatusBadRequest
	case errors.As(err, &terr):
		return http.StatusBadGateway
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrInFlight), errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidResetToken):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// Fields returns the per-field messages carried by err, if any.
func Fields(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
