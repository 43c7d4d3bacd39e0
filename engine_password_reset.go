package lovelace

import (
	"context"
	"errors"
	"time"

	"github.com/aloneinabyss/lovelace/internal"
)

// ForgotPassword issues a password reset token for email and queues the reset notification.
//
// An unknown address succeeds silently. A request made while the previous token is younger
// than the request cooldown fails with [ErrPasswordResetPending], and a full notification queue
// fails with [ErrNotificationUnavailable]. Both happen only for existing accounts, so transports
// are expected to collapse them into the same response as success.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, SeverityInfo, false, "", "", ErrUserNotFound, nil)
			return nil
		}
		return providerError(err)
	}

	now := e.now().UTC()
	if recentToken(user.ResetTokenCreatedAt, user.ResetTokenExpiresAt, now, e.config.PasswordReset.RequestCooldown) {
		e.emitAudit(ctx, auditEventPasswordResetRequest, SeverityInfo, false, user.ID, user.Username, ErrPasswordResetPending, nil)
		return ErrPasswordResetPending
	}

	token, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	user.ResetTokenHash = digest
	user.ResetTokenCreatedAt = now
	user.ResetTokenExpiresAt = now.Add(e.config.PasswordReset.TokenTTL)
	user.UpdatedAt = now
	if err := e.userProvider.SaveUser(ctx, user); err != nil {
		return providerError(err)
	}

	if !e.notify(ctx, user.Email, TemplatePasswordReset, map[string]string{
		"username":   user.Username,
		"token":      token,
		"expires_at": user.ResetTokenExpiresAt.Format(time.RFC3339),
	}) {
		return ErrNotificationUnavailable
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, SeverityInfo, true, user.ID, user.Username, nil, nil)
	return nil
}

// ResetPassword consumes a reset token and sets newPassword.
//
// Success advances the account's password epoch, which invalidates every token issued before
// it. An expired token fails with [ErrResetTokenExpired] and leaves the password unchanged.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.userProvider == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	if !internal.ValidOpaqueToken(token) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidResetToken
	}

	user, err := e.userProvider.GetUserByResetToken(ctx, internal.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, SeverityWarning, false, "", "", ErrInvalidResetToken, nil)
			return ErrInvalidResetToken
		}
		return providerError(err)
	}

	now := e.now().UTC()
	if !now.Before(user.ResetTokenExpiresAt) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, SeverityInfo, false, user.ID, user.Username, ErrResetTokenExpired, nil)
		return ErrResetTokenExpired
	}

	if err := e.setPassword(ctx, &user, newPassword, now); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, SeverityInfo, false, user.ID, user.Username, err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, SeverityInfo, true, user.ID, user.Username, nil, nil)
	e.notify(ctx, user.Email, TemplatePasswordChanged, map[string]string{"username": user.Username})
	return nil
}

// setPassword applies the policy and differ-from-current checks, then persists the new hash,
// clears any pending reset token and advances the password epoch.
func (e *Engine) setPassword(ctx context.Context, user *UserRecord, newPassword string, now time.Time) error {
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	same, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err == nil && same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return ErrPasswordMustDiffer
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.PasswordChangedAt = advancePasswordEpoch(*user, now)
	user.ResetTokenHash = ""
	user.ResetTokenCreatedAt = time.Time{}
	user.ResetTokenExpiresAt = time.Time{}
	user.UpdatedAt = now

	if err := e.userProvider.SaveUser(ctx, *user); err != nil {
		return providerError(err)
	}
	return nil
}
