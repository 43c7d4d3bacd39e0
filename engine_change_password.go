package lovelace

import (
	"context"
	"errors"
)

// ChangePassword replaces the password of an authenticated user after re-verifying the current
// one. Like a reset, it advances the password epoch so every earlier token stops validating,
// including the caller's own.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e == nil || e.userProvider == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return providerError(err)
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, SeverityWarning, false, user.ID, user.Username, ErrCurrentPasswordIncorrect, nil)
		return ErrCurrentPasswordIncorrect
	}

	if err := e.setPassword(ctx, &user, newPassword, e.now().UTC()); err != nil {
		event := auditEventPasswordChangeFailure
		if errors.Is(err, ErrPasswordMustDiffer) {
			event = auditEventPasswordChangeReuse
		}
		e.emitAudit(ctx, event, SeverityInfo, false, user.ID, user.Username, err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, SeverityInfo, true, user.ID, user.Username, nil, nil)
	e.notify(ctx, user.Email, TemplatePasswordChanged, map[string]string{"username": user.Username})
	return nil
}
