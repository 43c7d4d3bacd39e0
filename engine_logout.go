package lovelace

import (
	"context"
	"errors"
	"fmt"

	"github.com/aloneinabyss/lovelace/revocation"
)

// Logout revokes accessToken and, when non-empty, refreshToken until their natural expiry.
//
// Revoking the access token is required: a failure is returned. Revoking the refresh token is
// best effort and only logged. When Redis is down both entries are still held in process memory.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if accessToken == "" {
		return ErrAuthenticationRequired
	}

	res := e.flows.Logout(ctx, accessToken, refreshToken)

	if res.RefreshErr != nil {
		e.logger.WarnContext(ctx, "refresh token revocation on logout failed", "user_id", res.UserID, "error", res.RefreshErr)
		if errors.Is(res.RefreshErr, revocation.ErrUnavailable) {
			e.metricInc(MetricRevocationDegraded)
		}
	}

	if res.AccessErr != nil {
		if res.UserID == "" {
			// Signature or type failure; nothing was revoked.
			return decodeError(res.AccessErr)
		}
		e.metricInc(MetricRevocationDegraded)
		e.logger.ErrorContext(ctx, "access token revocation on logout failed", "user_id", res.UserID, "error", res.AccessErr)
		e.emitAudit(ctx, auditEventTokenRevocationDegraded, SeverityWarning, false, res.UserID, res.Username, ErrRevocationUnavailable, nil)
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, res.AccessErr)
	}

	e.metricInc(MetricTokenRevoked)
	if refreshToken != "" && res.RefreshErr == nil {
		e.metricInc(MetricTokenRevoked)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, SeverityInfo, true, res.UserID, res.Username, nil, func() map[string]string {
		return map[string]string{"refresh_revoked": fmt.Sprint(refreshToken != "" && res.RefreshErr == nil)}
	})
	return nil
}
