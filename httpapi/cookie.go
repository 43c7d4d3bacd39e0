package httpapi

import (
	"net/http"
	"time"
)

// setRefreshCookie stores token with a Max-Age equal to its remaining lifetime.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(h.remaining(expiresAt).Seconds())
	if maxAge <= 0 {
		h.clearRefreshCookie(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handler) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
