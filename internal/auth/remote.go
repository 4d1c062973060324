package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rewearify/rewearify/internal/api"
	"github.com/rewearify/rewearify/internal/identity"
)

// authReply is the envelope of the login and signup endpoints.
type authReply struct {
	Success bool               `json:"success"`
	User    *identity.Identity `json:"user,omitempty"`
	Token   string             `json:"token,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type messageReply struct {
	Message string `json:"message"`
}

// RemoteBackend talks to the auth endpoints of the backend API.
type RemoteBackend struct {
	client *api.Client
}

// NewRemoteBackend constructs a RemoteBackend over client.
func NewRemoteBackend(client *api.Client) *RemoteBackend {
	return &RemoteBackend{client: client}
}

// Login posts the credentials.
func (b *RemoteBackend) Login(ctx context.Context, email, password string) (Grant, error) {
	var reply authReply
	err := b.client.Do(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, &reply)
	if err != nil {
		if se, ok := api.AsStatus(err); ok && se.ClientError() {
			return Grant{}, ErrInvalidCredentials
		}
		return Grant{}, &TransportError{Err: err}
	}
	return replyGrant(reply, ErrInvalidCredentials)
}

// Signup posts the registration form.
func (b *RemoteBackend) Signup(ctx context.Context, req SignupRequest) (Grant, error) {
	var reply authReply
	if err := b.client.Do(ctx, http.MethodPost, "/api/auth/signup", req, &reply); err != nil {
		return Grant{}, rejection(err)
	}
	return replyGrant(reply, &RejectionError{Message: orDefault(reply.Error, "Signup failed")})
}

// ForgotPassword requests a reset link.
func (b *RemoteBackend) ForgotPassword(ctx context.Context, email string) (string, error) {
	var reply messageReply
	if err := b.client.Do(ctx, http.MethodPost, "/api/auth/forgot-password",
		map[string]string{"email": email}, &reply); err != nil {
		return "", rejection(err)
	}
	return reply.Message, nil
}

// ResetPassword submits the new password for token.
func (b *RemoteBackend) ResetPassword(ctx context.Context, token, password string) error {
	path := "/api/auth/reset-password/" + url.PathEscape(token)
	err := b.client.Do(ctx, http.MethodPost, path, map[string]string{"password": password}, nil)
	if err == nil {
		return nil
	}
	if se, ok := api.AsStatus(err); ok && (se.Status == http.StatusNotFound || se.Status == http.StatusGone) {
		return ErrInvalidResetToken
	}
	return rejection(err)
}

// UpdateProfile patches the profile of the identity behind credential.
func (b *RemoteBackend) UpdateProfile(ctx context.Context, credential string, patch identity.ProfilePatch) (*identity.Identity, error) {
	var reply authReply
	if err := b.client.WithToken(credential).Do(ctx, http.MethodPatch, "/api/users/me", patch, &reply); err != nil {
		if se, ok := api.AsStatus(err); ok && se.Status == http.StatusUnauthorized {
			return nil, ErrInvalidToken
		}
		return nil, rejection(err)
	}
	if !reply.Success || reply.User == nil {
		return nil, &RejectionError{Message: orDefault(reply.Error, "Profile update failed")}
	}
	return reply.User, nil
}

func replyGrant(reply authReply, rejected error) (Grant, error) {
	if !reply.Success {
		return Grant{}, rejected
	}
	grant := Grant{Identity: reply.User, Credential: reply.Token}
	if !grant.complete() {
		return Grant{}, &TransportError{Err: errors.New("auth: reply missing user or token")}
	}
	return grant, nil
}

// rejection maps a failed call: 4xx become rejections carrying the server
// message, everything else is a transport fault.
func rejection(err error) error {
	se, ok := api.AsStatus(err)
	if !ok || !se.ClientError() {
		return &TransportError{Err: err}
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if json.Unmarshal(se.Body, &body) == nil && len(body.Fields) > 0 {
		return &ValidationError{Fields: body.Fields}
	}
	switch {
	case se.Status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrEmailTaken, orDefault(se.Message, "conflict"))
	case se.Message != "":
		return &RejectionError{Message: se.Message}
	}
	return &RejectionError{Message: http.StatusText(se.Status)}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var (
	_ Backend        = (*RemoteBackend)(nil)
	_ ProfileUpdater = (*RemoteBackend)(nil)
)
