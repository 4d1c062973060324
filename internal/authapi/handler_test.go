package authapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rewearify/rewearify/internal/api"
	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/authapi"
	"github.com/rewearify/rewearify/internal/identity"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/session"
	_ "github.com/rewearify/rewearify/testing"
)

type fixture struct {
	server  *httptest.Server
	demo    *auth.DemoBackend
	source  *notify.MemorySource
	handler *authapi.Handler
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	demo, err := auth.NewDemoBackend(auth.DemoConfig{Tokens: tokens, BcryptCost: bcrypt.MinCost}, auth.DemoAccounts()...)
	require.NoError(t, err)
	source := notify.NewMemorySource(notify.SeedNotifications()...)

	h := authapi.NewHandler(nil, demo, tokens, source)
	if limit > 0 {
		h.AuthRateLimit = limit
	}
	r := chi.NewRouter()
	h.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, demo: demo, source: source, handler: h}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	f := newFixture(t, 0)

	resp := post(t, f.server.URL+"/api/auth/login", `{"email":"sarah@email.com","password":"demo123"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, f.server.URL+"/api/auth/login", `{"email":"sarah@email.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, f.server.URL+"/api/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	body := `{"email":"sarah@email.com","password":"bad"}`
	assert.Equal(t, http.StatusUnauthorized, post(t, f.server.URL+"/api/auth/login", body).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, f.server.URL+"/api/auth/login", body).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, post(t, f.server.URL+"/api/auth/login", body).StatusCode)
}

func TestBearerRequired(t *testing.T) {
	f := newFixture(t, 0)
	resp, err := http.Get(f.server.URL + "/api/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRemoteRoundTrip(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	store := session.NewMemoryStore()
	var svc *auth.Service
	client := api.NewClient(f.server.URL, api.WithTokenSource(api.TokenFunc(func() string { return svc.Token() })))
	ledger := notify.NewLedger(notify.NewRemoteSource(client), nil)
	svc = auth.NewService(auth.NewRemoteBackend(client), store, ledger, auth.WithTimeout(5*time.Second))

	_, err := svc.Login(ctx, "sarah@email.com", "wrong")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	snap, _ := store.Load(ctx)
	assert.False(t, snap.Authenticated())

	grant, err := svc.Login(ctx, "sarah@email.com", "demo123")
	require.NoError(t, err)
	assert.Equal(t, "1", grant.Identity.ID)
	require.Len(t, ledger.Items(), 2)
	assert.Equal(t, 2, ledger.UnreadCount())

	assert.True(t, ledger.MarkRead(ctx, "notif_001"))
	remote, err := f.source.ForUser(ctx, "1")
	require.NoError(t, err)
	assert.True(t, remote[0].Read)
	assert.False(t, remote[1].Read)

	bio := "Closet declutterer"
	updated, err := svc.UpdateProfile(ctx, identity.ProfilePatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Closet declutterer", updated.Bio)
	stored, ok := f.demo.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "Closet declutterer", stored.Bio)

	svc.Logout(ctx)
	assert.Zero(t, ledger.UnreadCount())

	_, err = svc.Signup(ctx, auth.SignupRequest{
		Name: "Lee", Email: "lee@example.com", Password: "secret1", ConfirmPassword: "secret1",
		Role: identity.RoleRecipient, Organization: "Food Bank", Location: "Austin, TX",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svc.Current().ID, "user_"))
	assert.Empty(t, ledger.Items())

	svc.Logout(ctx)
	_, err = svc.Signup(ctx, auth.SignupRequest{
		Name: "Lee", Email: "lee@example.com", Password: "secret1", ConfirmPassword: "secret1",
		Role: identity.RoleDonor, Location: "Austin, TX",
	})
	require.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestRemotePasswordReset(t *testing.T) {
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	mailer := &linkMailer{}
	demo, err := auth.NewDemoBackend(auth.DemoConfig{Tokens: tokens, Mailer: mailer, BcryptCost: bcrypt.MinCost}, auth.DemoAccounts()...)
	require.NoError(t, err)
	r := chi.NewRouter()
	authapi.NewHandler(nil, demo, tokens, nil).MountRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	svc := auth.NewService(auth.NewRemoteBackend(api.NewClient(srv.URL)), session.NewMemoryStore(), nil)

	msg, err := svc.ForgotPassword(ctx, "michael@email.com")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	require.NotEmpty(t, mailer.link)

	token := mailer.link[strings.LastIndex(mailer.link, "/")+1:]
	require.NoError(t, svc.ResetPassword(ctx, token, "brand-new"))
	require.ErrorIs(t, svc.ResetPassword(ctx, token, "brand-new"), auth.ErrInvalidResetToken)

	_, err = svc.Login(ctx, "michael@email.com", "brand-new")
	require.NoError(t, err)
}

type linkMailer struct{ link string }

func (m *linkMailer) SendPasswordReset(_ context.Context, msg auth.PasswordReset) error {
	m.link = msg.Link
	return nil
}
