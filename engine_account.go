package lovelace

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aloneinabyss/lovelace/internal"
	"github.com/google/uuid"
)

// Register creates an account in the pending-verification state and queues a verification
// notification. The account cannot log in until the e-mail is verified.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*UserSummary, error) {
	if e == nil || e.userProvider == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	if err := e.validateRegistration(username, email, req.Password); err != nil {
		e.emitAudit(ctx, auditEventAccountCreationFailure, SeverityInfo, false, "", username, err, func() map[string]string {
			return map[string]string{"reason": "validation"}
		})
		return nil, err
	}

	if err := e.ensureAvailable(ctx, username, email); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationDuplicate, SeverityWarning, false, "", username, err, nil)
		}
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}

	now := e.now().UTC()
	user := UserRecord{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        append([]string(nil), e.config.Account.DefaultRoles...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	token, err := e.armVerificationToken(&user, now)
	if err != nil {
		return nil, err
	}

	created, err := e.userProvider.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			// Lost a race with a concurrent registration.
			dup := ErrUsernameTaken
			if _, lookupErr := e.userProvider.GetUserByEmail(ctx, email); lookupErr == nil {
				dup = ErrEmailTaken
			}
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationDuplicate, SeverityWarning, false, "", username, dup, nil)
			return nil, dup
		}
		return nil, providerError(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, SeverityInfo, true, created.ID, created.Username, nil, nil)

	if !e.notify(ctx, created.Email, TemplateVerification, verificationParams(created, token)) {
		e.logger.WarnContext(ctx, "verification notification not queued after registration", "user_id", created.ID)
	}

	summary := summaryOf(principalOf(created))
	return &summary, nil
}

func (e *Engine) validateRegistration(username, email, password string) error {
	if n := len(username); n < e.config.Account.UsernameMinLen || n > e.config.Account.UsernameMaxLen {
		return fmt.Errorf("%w: length must be between %d and %d",
			ErrInvalidUsername, e.config.Account.UsernameMinLen, e.config.Account.UsernameMaxLen)
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return fmt.Errorf("%w: only letters, digits, '.', '_' and '-' are allowed", ErrInvalidUsername)
		}
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	return e.checkPasswordPolicy(password)
}

func (e *Engine) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := e.userProvider.GetUserByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return providerError(err)
	}

	if _, err := e.userProvider.GetUserByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return providerError(err)
	}
	return nil
}

func (e *Engine) checkPasswordPolicy(password string) error {
	if n := len(password); n < e.config.Password.MinLength || n > e.config.Password.MaxLength {
		return fmt.Errorf("%w: length must be between %d and %d",
			ErrPasswordPolicy, e.config.Password.MinLength, e.config.Password.MaxLength)
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail accepts a bare RFC 5322 address; display names and angle brackets are rejected.
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: required", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}
	return nil
}

// providerError keeps provider sentinels intact and wraps everything else.
func providerError(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserExists) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

// advancePasswordEpoch returns the new PasswordChangedAt for u. It never moves backwards.
func advancePasswordEpoch(u UserRecord, now time.Time) time.Time {
	if now.Before(u.PasswordChangedAt) {
		return u.PasswordChangedAt
	}
	return now
}

// notify queues n and reports whether it was accepted.
func (e *Engine) notify(ctx context.Context, recipient, template string, params map[string]string) bool {
	ok := e.notifications.Enqueue(ctx, Notification{
		Recipient: recipient,
		Template:  template,
		Params:    params,
		CreatedAt: e.now().UTC(),
	})
	if ok {
		e.metricInc(MetricNotificationQueued)
	} else {
		e.metricInc(MetricNotificationFailed)
		e.emitAudit(ctx, auditEventNotificationEnqueueFailed, SeverityWarning, false, "", "", ErrNotificationUnavailable, func() map[string]string {
			return map[string]string{"template": template}
		})
	}
	return ok
}

func verificationParams(u UserRecord, token string) map[string]string {
	return map[string]string{
		"username":   u.Username,
		"token":      token,
		"expires_at": u.VerificationTokenExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (e *Engine) armVerificationToken(u *UserRecord, now time.Time) (string, error) {
	token, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	u.VerificationTokenHash = digest
	u.VerificationTokenCreatedAt = now
	u.VerificationTokenExpiresAt = now.Add(e.config.EmailVerification.TokenTTL)
	return token, nil
}

// recentToken reports whether a single-use token created at createdAt is still inside its
// anti-spam cooldown and has not expired.
func recentToken(createdAt, expiresAt, now time.Time, cooldown time.Duration) bool {
	if createdAt.IsZero() || !now.Before(expiresAt) {
		return false
	}
	return now.Sub(createdAt) < cooldown
}
