package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manager ties browser cookies to session-scoped stores.
type Manager struct {
	provider   Provider
	cookieName string
	ttl        time.Duration
	secure     bool
	key        []byte
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSigningKey makes the manager sign cookie values with HMAC-SHA256 and
// reject cookies whose signature does not match.
func WithSigningKey(secret string) ManagerOption {
	return func(m *Manager) {
		if secret != "" {
			m.key = []byte(secret)
		}
	}
}

// NewManager constructs a Manager.
func NewManager(provider Provider, cookieName string, ttl time.Duration, secure bool, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:   provider,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the session id carried by the request cookie. Values that are
// not UUIDs are ignored so they never reach a storage key.
func (m *Manager) ID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	raw, ok := m.verify(cookie.Value)
	if !ok {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// Issue mints a new session id and writes its cookie.
func (m *Manager) Issue(w http.ResponseWriter) string {
	id := m.NewID()
	m.Refresh(w, id)
	return id
}

// NewID mints a session id without writing a cookie.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

// Refresh rewrites the cookie for id with a renewed expiry.
func (m *Manager) Refresh(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    m.sign(id),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(m.ttl),
	})
}

// Expire instructs the browser to drop the cookie.
func (m *Manager) Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Store returns the store scoped to id.
func (m *Manager) Store(id string) Store {
	return m.provider.StoreFor(id)
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) mac(id string) string {
	h := hmac.New(sha256.New, m.key)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (m *Manager) sign(id string) string {
	if len(m.key) == 0 {
		return id
	}
	return id + "." + m.mac(id)
}

func (m *Manager) verify(value string) (string, bool) {
	if len(m.key) == 0 {
		return value, true
	}
	id, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	return id, hmac.Equal([]byte(sig), []byte(m.mac(id)))
}
