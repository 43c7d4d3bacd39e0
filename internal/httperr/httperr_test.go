package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aloneinabyss/lovelace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{lovelace.ErrInvalidCredentials, http.StatusUnauthorized},
		{lovelace.ErrRefreshReuse, http.StatusUnauthorized},
		{lovelace.ErrEmailVerificationResent, http.StatusForbidden},
		{lovelace.ErrUsernameTaken, http.StatusBadRequest},
		{lovelace.ErrEmailAlreadyVerified, http.StatusConflict},
		{lovelace.ErrUserNotFound, http.StatusNotFound},
		{lovelace.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, StatusOf(tc.err), tc.err.Error())
	}
}

func TestWriteBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, fmt.Errorf("%w: signature mismatch", lovelace.ErrTokenInvalid))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, body.Status)
	assert.Equal(t, "Unauthorized", body.Error)
	assert.Equal(t, lovelace.CodeTokenInvalid, body.ErrorCode)
	assert.Equal(t, "/api/auth/refresh", body.Path)
	assert.False(t, body.Timestamp.IsZero())
}

func TestWriteHidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, errors.New("dial tcp 10.0.0.3:6379: connection refused"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, body.Status)
	assert.Equal(t, lovelace.CodeInternalError, body.ErrorCode)
	assert.Equal(t, "internal server error", body.Message)
}
