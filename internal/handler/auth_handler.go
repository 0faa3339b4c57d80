package handler

import (
	"net/http"
	"strings"

	"go-telemed/internal/middleware"
	"go-telemed/internal/model"
	"go-telemed/internal/service"
	"go-telemed/pkg/apierror"
)

const forgotPasswordMessage = "If that email exists, a reset link has been sent"

type AuthHandler struct {
	auth  *service.AuthService
	reset *service.ResetService
}

func NewAuthHandler(auth *service.AuthService, reset *service.ResetService) *AuthHandler {
	return &AuthHandler{auth: auth, reset: reset}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload model.SignupRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), payload, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.auth.Login(r.Context(), payload.Username, payload.Password, middleware.ClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, apierror.BadRequest("refresh_token is required", "refresh_token"))
		return
	}

	token, err := h.auth.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, token, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, userOK := middleware.UserFromContext(r.Context())
	claims, claimsOK := middleware.ClaimsFromContext(r.Context())
	if !userOK || !claimsOK {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload, true); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.Logout(r.Context(), user, claims, payload.RefreshToken, middleware.ClientIP(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// ForgotPassword answers the same way for known and unknown addresses. The
// link travels only through the reset notifier.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.reset.RequestReset(r.Context(), payload.Email, middleware.ClientIP(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageResponse{Message: forgotPasswordMessage}, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	if err := h.reset.RedeemReset(r.Context(), payload.Token, payload.NewPassword, middleware.ClientIP(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageResponse{Message: "Password has been reset successfully"}, nil)
}
