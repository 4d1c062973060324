// Package auth establishes, mutates and destroys sessions.
package auth

import (
	"context"
	"time"

	"github.com/rewearify/rewearify/internal/identity"
)

// Grant is an accepted login or signup.
type Grant struct {
	Identity   *identity.Identity `json:"user"`
	Credential string             `json:"token"`
}

func (g Grant) complete() bool {
	return g.Identity != nil && g.Identity.ID != "" && g.Credential != ""
}

// Backend exchanges credentials for identities.
type Backend interface {
	Login(ctx context.Context, email, password string) (Grant, error)
	Signup(ctx context.Context, req SignupRequest) (Grant, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) error
}

// ProfileUpdater is implemented by backends that persist profile edits.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, credential string, patch identity.ProfilePatch) (*identity.Identity, error)
}

// PasswordReset is the message sent to a user who asked for a reset link.
type PasswordReset struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordReset) error
}

// State is the session lifecycle state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
