package lovelace

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventRefreshSuccess            = "refresh_success"
	auditEventRefreshInvalid            = "refresh_invalid"
	auditEventRefreshReuseDetected      = "refresh_reuse_detected"
	auditEventAccountCreationSuccess    = "account_creation_success"
	auditEventAccountCreationDuplicate  = "account_creation_duplicate"
	auditEventAccountCreationFailure    = "account_creation_failure"
	auditEventEmailVerificationRequest  = "email_verification_request"
	auditEventEmailVerificationConfirm  = "email_verification_confirm"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetConfirm      = "password_reset_confirm"
	auditEventPasswordChangeSuccess     = "password_change_success"
	auditEventPasswordChangeInvalidOld  = "password_change_invalid_old"
	auditEventPasswordChangeReuse       = "password_change_reuse_attempt"
	auditEventPasswordChangeFailure     = "password_change_failure"
	auditEventLogout                    = "logout"
	auditEventTokenRevocationDegraded   = "token_revocation_degraded"
	auditEventRateLimitTriggered        = "rate_limit_triggered"
	auditEventAuthenticationFailure     = "authentication_failure"
	auditEventNotificationEnqueueFailed = "notification_enqueue_failed"
)

// AuditErrorCode is the stable, non-sensitive reason recorded in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPending            AuditErrorCode = "pending"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	severity AuditSeverity,
	success bool,
	userID string,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		Username:  username,
		IP:        ClientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, bucket RateLimitBucket, identity string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, SeverityWarning, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"bucket":   string(bucket),
			"identity": identity,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrCurrentPasswordIncorrect):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrVerificationTokenExpired),
		errors.Is(err, ErrResetTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshMissing),
		errors.Is(err, ErrAuthenticationRequired),
		errors.Is(err, ErrInvalidVerificationToken),
		errors.Is(err, ErrInvalidResetToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidEmail):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordMustDiffer):
		return auditErrPasswordReuse
	case errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrUserExists),
		errors.Is(err, ErrEmailAlreadyVerified):
		return auditErrDuplicate
	case errors.Is(err, ErrVerificationPending),
		errors.Is(err, ErrPasswordResetPending):
		return auditErrPending
	case errors.Is(err, ErrRevocationUnavailable),
		errors.Is(err, ErrNotificationUnavailable),
		errors.Is(err, ErrProviderUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
