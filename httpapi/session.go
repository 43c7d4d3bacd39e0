package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
	"github.com/aloneinabyss/lovelace/middleware"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identity returns the first non-empty of identifier, username and email.
func (req loginRequest) identity() string {
	for _, v := range []string{req.Identifier, req.Username, req.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.identity() == "" || req.Password == "" {
		httperr.WriteStatus(w, r, http.StatusBadRequest, lovelace.CodeValidationFailed, "username or email and password are required")
		return
	}

	res, err := h.engine.Login(r.Context(), req.identity(), req.Password)
	if err != nil {
		httperr.Write(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	httperr.WriteJSON(w, http.StatusOK, h.tokenBody(res))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := h.refreshCookie(r)
	if token == "" {
		httperr.Write(w, r, lovelace.ErrRefreshMissing)
		return
	}

	res, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		if lovelace.KindOf(err) == lovelace.KindAuthentication || errors.Is(err, lovelace.ErrAccountDisabled) {
			h.clearRefreshCookie(w)
		}
		httperr.Write(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
	httperr.WriteJSON(w, http.StatusOK, h.tokenBody(res))
}

// logout always clears the refresh cookie, even when revocation fails.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)

	access, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		httperr.Write(w, r, lovelace.ErrAuthenticationRequired)
		return
	}

	if err := h.engine.Logout(r.Context(), access, h.refreshCookie(r)); err != nil {
		httperr.Write(w, r, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

type meResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	ExpiresAt int64    `json:"expiresAt"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	res, ok := lovelace.AuthResultFromContext(r.Context())
	if !ok {
		httperr.Write(w, r, lovelace.ErrAuthenticationRequired)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, meResponse{
		ID:        res.UserID,
		Username:  res.Username,
		Roles:     res.Roles,
		ExpiresAt: res.ExpiresAt.Unix(),
	})
}
