// Package authapi serves the backend auth and notification endpoints on top
// of the in-memory demo directory.
package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/identity"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/platform/httpx"
)

// Directory is the account store behind the endpoints.
type Directory interface {
	auth.Backend
	auth.ProfileUpdater
	Lookup(id string) (*identity.Identity, bool)
}

// Verifier checks bearer credentials.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Handler wires the backend API endpoints.
type Handler struct {
	logger        *slog.Logger
	directory     Directory
	tokens        Verifier
	notifications notify.Source

	// AuthRateLimit caps credential endpoints per client IP per minute.
	AuthRateLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, directory Directory, tokens Verifier, notifications notify.Source) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		directory:     directory,
		tokens:        tokens,
		notifications: notifications,
		AuthRateLimit: 20,
	}
}

// MountRoutes registers the /api routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.AuthRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "Too many attempts, please try again later", nil)
		}),
	)
	r.Route("/api", func(r chi.Router) {
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/auth/login", h.handleLogin)
			gr.Post("/auth/signup", h.handleSignup)
			gr.Post("/auth/forgot-password", h.handleForgot)
			gr.Post("/auth/reset-password/{token}", h.handleReset)
		})
		r.Group(func(gr chi.Router) {
			gr.Use(h.requireBearer)
			gr.Get("/users/me", h.handleMe)
			gr.Patch("/users/me", h.handleUpdateMe)
			gr.Get("/notifications", h.handleNotifications)
			gr.Post("/notifications/{id}/read", h.handleMarkRead)
		})
	})
}

type authReply struct {
	Success bool               `json:"success"`
	User    *identity.Identity `json:"user,omitempty"`
	Token   string             `json:"token,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := auth.ValidateLogin(in.Email, in.Password); err != nil {
		h.fail(w, err)
		return
	}
	grant, err := h.directory.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, authReply{Success: true, User: grant.Identity, Token: grant.Credential})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	grant, err := h.directory.Signup(r.Context(), in.Normalize())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("account created", slog.String("user_id", grant.Identity.ID), slog.String("role", grant.Identity.Role.String()))
	httpx.JSON(w, http.StatusCreated, authReply{Success: true, User: grant.Identity, Token: grant.Credential})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := auth.ValidateForgot(in.Email); err != nil {
		h.fail(w, err)
		return
	}
	msg, err := h.directory.ForgotPassword(r.Context(), identity.NormalizeEmail(in.Email))
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
	if err := h.directory.ResetPassword(r.Context(), chi.URLParam(r, "token"), in.Password); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	id, ok := h.directory.Lookup(claims.Subject)
	if !ok {
		h.fail(w, auth.ErrInvalidToken)
		return
	}
	httpx.JSON(w, http.StatusOK, authReply{Success: true, User: id})
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch identity.ProfilePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	updated, err := h.directory.UpdateProfile(r.Context(), httpx.BearerToken(r), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, authReply{Success: true, User: updated})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items := []notify.Notification{}
	if h.notifications != nil {
		found, err := h.notifications.ForUser(r.Context(), claimsFrom(r.Context()).Subject)
		if err != nil {
			h.logger.Error("list notifications", slog.Any("error", err))
			httpx.Fail(w, http.StatusInternalServerError, "server error", nil)
			return
		}
		items = append(items, found...)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	marker, ok := h.notifications.(notify.ReadMarker)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	userID := claimsFrom(r.Context()).Subject
	if err := marker.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.logger.Error("mark notification read", slog.String("user_id", userID), slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, "server error", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := auth.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth api", slog.Any("error", err))
	}
	httpx.Fail(w, status, auth.UserMessage(err), auth.Fields(err))
}

type claimsKey struct{}

func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.tokens.Verify(httpx.BearerToken(r))
		if err != nil || strings.TrimSpace(claims.Subject) == "" {
			httpx.Fail(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}
