package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewearify/rewearify/internal/api"
	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/identity"
)

func stubAPI(t *testing.T, handler http.HandlerFunc) *auth.RemoteBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return auth.NewRemoteBackend(api.NewClient(srv.URL))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRemoteLoginMapping(t *testing.T) {
	backend := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["email"] {
		case "good@x.com":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"user":    map[string]any{"id": "1", "name": "Good", "email": "good@x.com", "role": "donor"},
				"token":   "jwt-1",
			})
		case "soft@x.com":
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Invalid credentials"})
		case "hard@x.com":
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid credentials"})
		case "empty@x.com":
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	grant, err := backend.Login(ctx, "good@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", grant.Credential)
	assert.Equal(t, identity.RoleDonor, grant.Identity.Role)

	_, err = backend.Login(ctx, "soft@x.com", "pw")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = backend.Login(ctx, "hard@x.com", "pw")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	var terr *auth.TransportError
	_, err = backend.Login(ctx, "boom@x.com", "pw")
	assert.ErrorAs(t, err, &terr)
	_, err = backend.Login(ctx, "empty@x.com", "pw")
	assert.ErrorAs(t, err, &terr)
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	backend := auth.NewRemoteBackend(api.NewClient(url))
	_, err := backend.Login(context.Background(), "good@x.com", "pw")
	var terr *auth.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "server error", auth.UserMessage(err))
}

func TestRemoteSignupMapping(t *testing.T) {
	backend := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var req auth.SignupRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Email {
		case "taken@x.com":
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "Email already registered"})
		case "fields@x.com":
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "validation failed",
				"fields": map[string]string{"location": "Location is required"}})
		case "refused@x.com":
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "Signups are closed"})
		default:
			writeJSON(w, http.StatusCreated, map[string]any{
				"success": true,
				"user":    map[string]any{"id": "user_9", "email": req.Email, "role": req.Role},
				"token":   "jwt-9",
			})
		}
	})
	ctx := context.Background()

	grant, err := backend.Signup(ctx, auth.SignupRequest{Email: "ok@x.com", Role: identity.RoleRecipient})
	require.NoError(t, err)
	assert.Equal(t, "user_9", grant.Identity.ID)

	_, err = backend.Signup(ctx, auth.SignupRequest{Email: "taken@x.com"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = backend.Signup(ctx, auth.SignupRequest{Email: "fields@x.com"})
	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Location is required", verr.Field("location"))

	_, err = backend.Signup(ctx, auth.SignupRequest{Email: "refused@x.com"})
	assert.ErrorIs(t, err, auth.ErrRejected)
	assert.Equal(t, "Signups are closed", auth.UserMessage(err))
}

func TestRemoteResetAndProfile(t *testing.T) {
	backend := stubAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/auth/forgot-password":
			writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
		case r.URL.Path == "/api/auth/reset-password/good":
			writeJSON(w, http.StatusOK, map[string]any{})
		case r.URL.Path == "/api/auth/reset-password/old":
			writeJSON(w, http.StatusGone, map[string]any{"error": "expired"})
		case r.URL.Path == "/api/users/me" && r.Header.Get("Authorization") == "Bearer jwt-1":
			var patch identity.ProfilePatch
			_ = json.NewDecoder(r.Body).Decode(&patch)
			writeJSON(w, http.StatusOK, map[string]any{"success": true,
				"user": map[string]any{"id": "1", "role": "donor", "name": *patch.Name}})
		case r.URL.Path == "/api/users/me":
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		}
	})
	ctx := context.Background()

	msg, err := backend.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "sent", msg)

	require.NoError(t, backend.ResetPassword(ctx, "good", "secret1"))
	assert.ErrorIs(t, backend.ResetPassword(ctx, "old", "secret1"), auth.ErrInvalidResetToken)

	name := "New"
	id, err := backend.UpdateProfile(ctx, "jwt-1", identity.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", id.Name)

	_, err = backend.UpdateProfile(ctx, "jwt-x", identity.ProfilePatch{Name: &name})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
