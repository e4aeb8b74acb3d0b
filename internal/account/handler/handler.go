// Package handler wires account endpoints to the account service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"threadhub/internal/account/models"
	"threadhub/internal/account/service"
	"threadhub/internal/oauth"
	"threadhub/internal/platform/middleware"
	derrors "threadhub/pkg/domain-errors"
	"threadhub/pkg/platform/httputil"
)

// Service defines the account operations the handler depends on.
type Service interface {
	Signup(ctx context.Context, email, password string, name *string) (service.AuthResult, error)
	Login(ctx context.Context, email, password string) (service.AuthResult, error)
	Me(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, update models.ProfileUpdate) (models.User, error)
	VerifyEmail(ctx context.Context, token string) (models.User, error)
	ResendVerification(ctx context.Context, userID uuid.UUID) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	OAuthSync(ctx context.Context, provider string, info oauth.UserInfo) (service.AuthResult, error)
	OAuthAuthURL(provider string) (string, error)
	OAuthCallback(ctx context.Context, provider, code string) (service.AuthResult, error)
}

// Handler is the JSON/HTTP adapter for account operations.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an account handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts public account endpoints. requireAuth guards the
// endpoints that act on the authenticated user; rateLimit guards the
// credential endpoints.
func (h *Handler) Register(r chi.Router, requireAuth, rateLimit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit).Post("/signup", h.HandleSignup)
		r.With(rateLimit).Post("/login", h.HandleLogin)
		r.Post("/verify-email", h.HandleVerifyEmail)
		r.With(rateLimit).Post("/forgot-password", h.HandleForgotPassword)
		r.Post("/reset-password", h.HandleResetPassword)
		r.Post("/oauth/sync", h.HandleOAuthSync)
		r.Get("/oauth/{provider}", h.HandleOAuthRedirect)
		r.Get("/oauth/{provider}/callback", h.HandleOAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", h.HandleMe)
			r.Put("/me", h.HandleUpdateMe)
			r.Post("/resend-verification", h.HandleResendVerification)
		})
	})
}

type signupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

// HandleSignup handles POST /auth/signup.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[signupRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.logger.InfoContext(r.Context(), "signup failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[loginRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthenticated, "authentication required"))
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleUpdateMe handles PUT /auth/me.
func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.Decode[models.ProfileUpdate](w, r)
	if !ok {
		return
	}

	user, err := h.service.UpdateMe(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

// HandleVerifyEmail handles POST /auth/verify-email.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[verifyEmailRequest](w, r)
	if !ok {
		return
	}

	user, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleResendVerification handles POST /auth/resend-verification.
func (h *Handler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthenticated, "authentication required"))
		return
	}

	if err := h.service.ResendVerification(r.Context(), userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "verification email sent"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword handles POST /auth/forgot-password. The response is
// identical whether or not the address matches an account.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[forgotPasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "if the email exists, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// HandleResetPassword handles POST /auth/reset-password.
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[resetPasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type oauthSyncRequest struct {
	Provider       string  `json:"provider"`
	ProviderUserID string  `json:"provider_user_id"`
	Email          string  `json:"email"`
	Name           *string `json:"name"`
	AvatarURL      *string `json:"avatar_url"`
	AccessToken    string  `json:"access_token"`
}

// HandleOAuthSync handles POST /auth/oauth/sync. A trusted frontend that ran
// the provider flow itself posts the verified identity here to obtain a
// backend token.
func (h *Handler) HandleOAuthSync(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[oauthSyncRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.OAuthSync(r.Context(), req.Provider, oauth.UserInfo{
		ProviderUserID: req.ProviderUserID,
		Email:          req.Email,
		Name:           req.Name,
		AvatarURL:      req.AvatarURL,
		AccessToken:    req.AccessToken,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleOAuthRedirect handles GET /auth/oauth/{provider}.
func (h *Handler) HandleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	authURL, err := h.service.OAuthAuthURL(provider)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// HandleOAuthCallback handles GET /auth/oauth/{provider}/callback.
func (h *Handler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteError(w, derrors.New(derrors.CodeInvalidArgument, "missing authorization code"))
		return
	}

	result, err := h.service.OAuthCallback(r.Context(), provider, code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
