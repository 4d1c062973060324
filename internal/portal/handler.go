package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rewearify/rewearify/internal/access"
	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/dashboard"
	"github.com/rewearify/rewearify/internal/identity"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/platform/httpx"
	"github.com/rewearify/rewearify/internal/session"
)

// Observer is notified of every credential operation.
type Observer interface {
	ObserveAuth(operation string, err error)
}

// Handler wires the browser session endpoints.
type Handler struct {
	logger   *slog.Logger
	sessions *session.Manager
	registry *Registry
	gate     *access.Gate

	// AuthRateLimit caps credential submissions per client IP per minute.
	AuthRateLimit int
	// Observer is optional.
	Observer Observer
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, sessions *session.Manager, registry *Registry, gate *access.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		sessions:      sessions,
		registry:      registry,
		gate:          gate,
		AuthRateLimit: 30,
	}
}

// MountRoutes registers the portal routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.AuthRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "Too many attempts, please try again later", nil)
		}),
	)
	guard := access.Middleware{Gate: h.gate, Identity: h.identity, Logger: h.logger}

	r.Group(func(r chi.Router) {
		r.Use(h.attach)

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter).Post("/login", h.handleLogin)
			r.With(limiter).Post("/signup", h.handleSignup)
			r.Post("/logout", h.handleLogout)
			r.With(limiter).Post("/forgot-password", h.handleForgot)
			r.With(limiter).Post("/reset-password/{token}", h.handleReset)
		})
		r.Get("/me", h.handleMe)
		r.Patch("/me", h.handleUpdateMe)
		r.Get("/routes/check", h.handleCheck)

		r.Group(func(r chi.Router) {
			r.Use(guard.Guard)
			r.Get("/dashboard", h.handleDashboard)
			r.Get("/notifications", h.handleNotifications)
			r.Post("/notifications/{id}/read", h.handleMarkRead)
			for _, p := range h.gate.Table().Policies() {
				if p.Path == "/dashboard" || p.Path == "/notifications" {
					continue
				}
				r.Get(p.Path, h.handlePlaceholder)
			}
		})
	})
}

func (h *Handler) observe(operation string, err error) {
	if h.Observer != nil {
		h.Observer.ObserveAuth(operation, err)
	}
}

type serviceKey struct{}
type sessionIDKey struct{}

// attach resolves the browser session, issuing a cookie on first visit.
func (h *Handler) attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.sessions.ID(r)
		if !ok {
			id = h.sessions.Issue(w)
		}
		svc := h.registry.Get(r.Context(), id)
		ctx := context.WithValue(r.Context(), serviceKey{}, svc)
		ctx = context.WithValue(ctx, sessionIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func serviceFrom(r *http.Request) *auth.Service {
	svc, _ := r.Context().Value(serviceKey{}).(*auth.Service)
	return svc
}

func sessionIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(sessionIDKey{}).(string)
	return id
}

func (h *Handler) identity(r *http.Request) *identity.Identity {
	if svc := serviceFrom(r); svc != nil {
		return svc.Current()
	}
	return nil
}

type sessionReply struct {
	Success bool               `json:"success"`
	User    *identity.Identity `json:"user,omitempty"`
	State   auth.State         `json:"state"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	svc := serviceFrom(r)
	grant, err := svc.Login(r.Context(), in.Email, in.Password)
	h.observe("login", err)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.rotate(w, r, svc)
	httpx.JSON(w, http.StatusOK, sessionReply{Success: true, User: grant.Identity, State: svc.State()})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	svc := serviceFrom(r)
	grant, err := svc.Signup(r.Context(), in)
	h.observe("signup", err)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.rotate(w, r, svc)
	httpx.JSON(w, http.StatusCreated, sessionReply{Success: true, User: grant.Identity, State: svc.State()})
}

// rotate reissues the session cookie under a fresh id once a session is
// established. On failure the pre-login id is kept.
func (h *Handler) rotate(w http.ResponseWriter, r *http.Request, svc *auth.Service) {
	oldID := sessionIDFrom(r)
	id, err := h.registry.Rotate(r.Context(), oldID, svc)
	if err != nil {
		h.logger.Warn("rotate session id", slog.Any("error", err))
		id = oldID
	}
	h.sessions.Refresh(w, id)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	serviceFrom(r).Logout(r.Context())
	h.registry.Forget(sessionIDFrom(r))
	h.sessions.Expire(w)
	httpx.JSON(w, http.StatusOK, sessionReply{Success: true, State: auth.Anonymous})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	msg, err := serviceFrom(r).ForgotPassword(r.Context(), in.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	err := serviceFrom(r).ResetPassword(r.Context(), chi.URLParam(r, "token"), in.Password)
	h.observe("reset_password", err)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	svc := serviceFrom(r)
	current := svc.Current()
	if current == nil {
		h.fail(w, auth.ErrNoActiveSession)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionReply{Success: true, User: current, State: svc.State()})
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch identity.ProfilePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	svc := serviceFrom(r)
	updated, err := svc.UpdateProfile(r.Context(), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionReply{Success: true, User: updated, State: svc.State()})
}

type notificationsReply struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ledger := serviceFrom(r).Ledger()
	items := ledger.Items()
	if items == nil {
		items = []notify.Notification{}
	}
	httpx.JSON(w, http.StatusOK, notificationsReply{Notifications: items, Unread: ledger.UnreadCount()})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	svc := serviceFrom(r)
	changed, err := svc.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changed": changed, "unread": svc.Ledger().UnreadCount()})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, dashboard.For(h.identity(r)))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if !strings.HasPrefix(path, "/") {
		httpx.RespondError(w, fmt.Errorf("%w: path must start with /", httpx.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, h.gate.Check(h.identity(r), path))
}

func (h *Handler) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "view": "placeholder"})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := auth.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("portal", slog.Any("error", err))
	}
	httpx.Fail(w, status, auth.UserMessage(err), auth.Fields(err))
}
