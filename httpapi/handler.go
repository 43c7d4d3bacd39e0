package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
	"github.com/aloneinabyss/lovelace/middleware"
)

const (
	basePath        = "/api/auth"
	maxRequestBytes = 1 << 20
)

// Handler owns the routes of the authentication API.
type Handler struct {
	engine *lovelace.Engine
	cookie lovelace.CookieConfig
	logger *slog.Logger
	trust  bool
}

// New builds the handler for engine. A nil logger falls back to slog.Default.
func New(engine *lovelace.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := engine.Config()
	return &Handler{
		engine: engine,
		cookie: cfg.Cookie,
		logger: logger,
		trust:  cfg.RateLimit.TrustForwardedFor,
	}
}

// Routes returns the API wrapped in panic recovery and request logging. Login and refresh are
// throttled by their own buckets; every other route shares the global bucket.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	global := middleware.RateLimit(h.engine, lovelace.BucketGlobal)
	login := middleware.RateLimit(h.engine, lovelace.BucketLogin)
	refresh := middleware.RateLimit(h.engine, lovelace.BucketRefresh)
	guard := middleware.Guard(h.engine)

	mux.Handle("POST "+basePath+"/register", global(http.HandlerFunc(h.register)))
	mux.Handle("POST "+basePath+"/login", login(http.HandlerFunc(h.login)))
	mux.Handle("GET "+basePath+"/verify-email", global(http.HandlerFunc(h.verifyEmail)))
	mux.Handle("POST "+basePath+"/resend-verification", global(http.HandlerFunc(h.resendVerification)))
	mux.Handle("POST "+basePath+"/refresh", refresh(http.HandlerFunc(h.refresh)))
	mux.Handle("POST "+basePath+"/forgot-password", global(http.HandlerFunc(h.forgotPassword)))
	mux.Handle("POST "+basePath+"/reset-password", global(http.HandlerFunc(h.resetPassword)))
	mux.Handle("POST "+basePath+"/change-password", global(guard(http.HandlerFunc(h.changePassword))))
	mux.Handle("POST "+basePath+"/logout", global(http.HandlerFunc(h.logout)))
	mux.Handle("GET "+basePath+"/me", global(guard(http.HandlerFunc(h.me))))
	mux.HandleFunc("GET /healthz", h.health)

	return middleware.Recover(middleware.RequestLogger(h.logger, h.trust)(mux))
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	AccessToken string               `json:"accessToken"`
	TokenType   string               `json:"tokenType"`
	ExpiresIn   int64                `json:"expiresIn"`
	User        lovelace.UserSummary `json:"user"`
}

func (h *Handler) tokenBody(res *lovelace.LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken: res.Tokens.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.remaining(res.Tokens.AccessExpiresAt).Round(time.Second) / time.Second),
		User:        res.User,
	}
}

// remaining is the lifetime left before t on the engine clock.
func (h *Handler) remaining(t time.Time) time.Duration {
	return t.Sub(h.engine.Now())
}

var errMalformedBody = errors.New("malformed request body")

// decodeJSON reads a single JSON document of at most maxRequestBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(dst); err != nil {
		msg := errMalformedBody.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		httperr.WriteStatus(w, r, http.StatusBadRequest, lovelace.CodeValidationFailed, msg)
		return false
	}
	return true
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ok, latency := h.engine.Health(r.Context())
	status := http.StatusOK
	state := "ok"
	if !ok {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	httperr.WriteJSON(w, status, map[string]any{
		"status":           state,
		"redis_latency_ms": latency.Milliseconds(),
	})
}
