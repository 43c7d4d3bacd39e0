package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aloneinabyss/lovelace/jwt"
)

type LogoutRevocationStore interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// Identify verifies the signature without checking expiry; expired tokens revoke as no-ops.
	Identify   func(string) (*jwt.Claims, error)
	Now        func() time.Time
	Revocation LogoutRevocationStore
}

// LogoutResult reports the primary (access) and best-effort (refresh) outcomes separately.
type LogoutResult struct {
	UserID     string
	Username   string
	AccessErr  error
	RefreshErr error
}

var errRefreshOwnerMismatch = errors.New("refresh token belongs to a different user")

// RunLogout revokes the presented access token and, when supplied, the refresh token.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	access, err := deps.Identify(accessToken)
	if err != nil {
		return LogoutResult{AccessErr: err}
	}
	if access.Type != jwt.TypeAccess {
		return LogoutResult{AccessErr: &jwt.DecodeError{Kind: jwt.KindWrongType, Err: errors.New("expected access token")}}
	}

	now := deps.Now()
	res := LogoutResult{
		UserID:    access.UserID,
		Username:  access.Subject,
		AccessErr: deps.Revocation.Revoke(ctx, accessToken, access.Remaining(now)),
	}

	if refreshToken == "" {
		return res
	}
	refresh, err := deps.Identify(refreshToken)
	switch {
	case err != nil:
		res.RefreshErr = err
	case refresh.Type != jwt.TypeRefresh:
		res.RefreshErr = &jwt.DecodeError{Kind: jwt.KindWrongType, Err: errors.New("expected refresh token")}
	case refresh.UserID != access.UserID:
		res.RefreshErr = errRefreshOwnerMismatch
	default:
		res.RefreshErr = deps.Revocation.Revoke(ctx, refreshToken, refresh.Remaining(now))
	}
	return res
}
