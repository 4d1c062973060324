package access

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rewearify/rewearify/internal/identity"
	"github.com/rewearify/rewearify/internal/platform/httpx"
)

// IdentityFunc resolves the identity behind a request, nil when anonymous.
type IdentityFunc func(*http.Request) *identity.Identity

// Middleware guards routes with a Gate. The identity is resolved on every
// request so logins and logouts take effect immediately.
type Middleware struct {
	Gate     *Gate
	Identity IdentityFunc
	Logger   *slog.Logger
}

// Guard evaluates the gate against the request path.
func (m Middleware) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := m.Gate.Check(m.current(r), r.URL.Path)
		if out.Allowed() {
			next.ServeHTTP(w, r)
			return
		}
		m.deny(w, r, out)
	})
}

// Require guards a single handler with an explicit role list. A nil list
// admits any authenticated identity.
func (m Middleware) Require(allowed ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := Outcome{Decision: Evaluate(m.current(r), allowed)}
			switch out.Decision {
			case Render:
				next.ServeHTTP(w, r)
				return
			case RedirectLogin:
				out.Location = m.Gate.loginPath
			case RedirectUnauthorized:
				out.Location = m.Gate.fallbackPath
			}
			m.deny(w, r, out)
		})
	}
}

func (m Middleware) current(r *http.Request) *identity.Identity {
	if m.Identity == nil {
		return nil
	}
	return m.Identity(r)
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, out Outcome) {
	if m.Logger != nil {
		m.Logger.Debug("access denied",
			slog.String("path", r.URL.Path),
			slog.String("decision", out.Decision.String()))
	}
	if wantsHTML(r) {
		http.Redirect(w, r, out.Location, http.StatusFound)
		return
	}
	status := http.StatusForbidden
	if out.Decision == RedirectLogin {
		status = http.StatusUnauthorized
	}
	httpx.JSON(w, status, out)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
