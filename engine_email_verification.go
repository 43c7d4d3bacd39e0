package lovelace

import (
	"context"
	"errors"
	"time"

	"github.com/aloneinabyss/lovelace/internal"
)

// VerifyEmail consumes a verification token and activates the account.
//
// Unknown or already consumed tokens fail with [ErrInvalidVerificationToken]; expired tokens fail
// with [ErrVerificationTokenExpired] and leave the account pending.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	if !internal.ValidOpaqueToken(token) {
		e.metricInc(MetricEmailVerificationFailure)
		return ErrInvalidVerificationToken
	}

	user, err := e.userProvider.GetUserByVerificationToken(ctx, internal.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerificationConfirm, SeverityInfo, false, "", "", ErrInvalidVerificationToken, nil)
			return ErrInvalidVerificationToken
		}
		return providerError(err)
	}

	if user.EmailVerified {
		e.metricInc(MetricEmailVerificationFailure)
		return ErrEmailAlreadyVerified
	}

	now := e.now().UTC()
	if !now.Before(user.VerificationTokenExpiresAt) {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, SeverityInfo, false, user.ID, user.Username, ErrVerificationTokenExpired, nil)
		return ErrVerificationTokenExpired
	}

	user.EmailVerified = true
	user.Enabled = true
	user.VerificationTokenHash = ""
	user.VerificationTokenCreatedAt = time.Time{}
	user.VerificationTokenExpiresAt = time.Time{}
	user.UpdatedAt = now
	if err := e.userProvider.SaveUser(ctx, user); err != nil {
		return providerError(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, SeverityInfo, true, user.ID, user.Username, nil, nil)

	e.notify(ctx, user.Email, TemplateWelcome, map[string]string{"username": user.Username})
	return nil
}

// ResendVerification issues a fresh verification token for a pending account.
//
// It fails with [ErrUserNotFound] for unknown addresses, [ErrEmailAlreadyVerified] for active
// accounts and [ErrVerificationPending] when the previous token is younger than the resend
// cooldown. A notification that cannot be queued fails with [ErrNotificationUnavailable].
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		return providerError(err)
	}
	e.metricInc(MetricEmailVerificationRequest)

	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	now := e.now().UTC()
	if recentToken(user.VerificationTokenCreatedAt, user.VerificationTokenExpiresAt, now, e.config.EmailVerification.ResendCooldown) {
		e.emitAudit(ctx, auditEventEmailVerificationRequest, SeverityInfo, false, user.ID, user.Username, ErrVerificationPending, nil)
		return ErrVerificationPending
	}

	queued, err := e.resendVerification(ctx, &user, now)
	if err != nil {
		return err
	}
	if !queued {
		return ErrNotificationUnavailable
	}

	e.emitAudit(ctx, auditEventEmailVerificationRequest, SeverityInfo, true, user.ID, user.Username, nil, nil)
	return nil
}

// resendVerification replaces the stored token, persists it and queues the notification.
func (e *Engine) resendVerification(ctx context.Context, user *UserRecord, now time.Time) (bool, error) {
	token, err := e.armVerificationToken(user, now)
	if err != nil {
		return false, err
	}
	user.UpdatedAt = now
	if err := e.userProvider.SaveUser(ctx, *user); err != nil {
		return false, providerError(err)
	}
	return e.notify(ctx, user.Email, TemplateVerification, verificationParams(*user, token)), nil
}
