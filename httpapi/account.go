package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string               `json:"message"`
	User    lovelace.UserSummary `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.engine.Register(r.Context(), lovelace.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httperr.Write(w, r, err)
		return
	}

	httperr.WriteJSON(w, http.StatusCreated, registerResponse{
		Message: "registration successful, check your e-mail to verify your account",
		User:    *user,
	})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		httperr.Write(w, r, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: "e-mail verified, you can now log in"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), req.Email); err != nil {
		httperr.Write(w, r, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: "verification e-mail sent"})
}

const forgotPasswordMessage = "if an account exists for that address, a reset link has been sent"

// forgotPassword answers identically for unknown addresses, throttled requests, a full
// notification queue and success. Only requests that never reach an account lookup may differ.
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.engine.ForgotPassword(r.Context(), req.Email)
	switch {
	case err == nil, errors.Is(err, lovelace.ErrPasswordResetPending), errors.Is(err, lovelace.ErrUserNotFound):
	case errors.Is(err, lovelace.ErrNotificationUnavailable):
		h.logger.WarnContext(r.Context(), "password reset notification not queued", slog.String("error", err.Error()))
	default:
		httperr.Write(w, r, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		httperr.Write(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// changePassword runs behind the guard. Every session of the user ends, so the cookie goes too.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	auth, ok := lovelace.AuthResultFromContext(r.Context())
	if !ok {
		httperr.Write(w, r, lovelace.ErrAuthenticationRequired)
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ChangePassword(r.Context(), auth.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httperr.Write(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: "password changed, please log in again"})
}
