package lovelace

import (
	"context"
	"errors"
	"strings"
)

// Login authenticates identifier (username or e-mail) and password and issues a token pair.
//
// Unknown identities and wrong passwords fail identically with [ErrInvalidCredentials]. A correct
// password on an unverified account fails with [ErrEmailNotVerified]; when no recent
// verification token exists a new one is sent first and the error is
// [ErrEmailVerificationResent], which also matches ErrEmailNotVerified.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if e == nil || e.userProvider == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	user, err := e.lookupIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		// Burn the same Argon2 work as a real verification.
		_, _ = e.passwordHash.Verify(password, e.dummyHash)
		e.loginFailed(ctx, "", identifier, "user_not_found")
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		e.loginFailed(ctx, user.ID, identifier, "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, e.loginUnverified(ctx, user)
	}
	if !user.Enabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, SeverityWarning, false, user.ID, user.Username, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, user, password)
	}
	password = ""

	principal := principalOf(user)
	pair, err := e.issuePair(principal)
	if err != nil {
		e.logger.ErrorContext(ctx, "token issuance failed", "user_id", user.ID, "error", err)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, user.ID, user.Username, nil, nil)

	return &LoginResult{
		Tokens: pair,
		User:   summaryOf(principal),
	}, nil
}

func (e *Engine) lookupIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	if identifier == "" {
		return UserRecord{}, ErrUserNotFound
	}

	var (
		user UserRecord
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = e.userProvider.GetUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = e.userProvider.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		return UserRecord{}, providerError(err)
	}
	return user, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID, identifier, reason string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, SeverityWarning, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     reason,
		}
	})
}

func (e *Engine) loginUnverified(ctx context.Context, user UserRecord) error {
	e.metricInc(MetricLoginUnverified)

	now := e.now().UTC()
	if recentToken(user.VerificationTokenCreatedAt, user.VerificationTokenExpiresAt, now, e.config.EmailVerification.ResendCooldown) {
		e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, user.Username, ErrEmailNotVerified, nil)
		return ErrEmailNotVerified
	}

	queued, err := e.resendVerification(ctx, &user, now)
	if err != nil {
		e.logger.WarnContext(ctx, "verification re-send on login failed", "user_id", user.ID, "error", err)
		return ErrEmailNotVerified
	}
	if !queued {
		return ErrEmailNotVerified
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventLoginFailure, SeverityInfo, false, user.ID, user.Username, ErrEmailVerificationResent, func() map[string]string {
		return map[string]string{"reason": "verification_resent"}
	})
	return ErrEmailVerificationResent
}

// upgradePasswordHash re-hashes with current parameters. Failures never block the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user UserRecord, password string) {
	needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}

	upgraded, err := e.passwordHash.Hash(password)
	if err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade generation failed", "user_id", user.ID)
		return
	}

	user.PasswordHash = upgraded
	user.UpdatedAt = e.now().UTC()
	if err := e.userProvider.SaveUser(ctx, user); err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade update failed", "user_id", user.ID, "error", err)
	}
}
