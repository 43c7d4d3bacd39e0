package lovelace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aloneinabyss/lovelace/internal/flows"
	"github.com/aloneinabyss/lovelace/jwt"
)

// IssueAccessToken signs a short-lived access token for p.
func (e *Engine) IssueAccessToken(p Principal) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.Issue(p.Username, p.UserID, p.Roles, jwt.TypeAccess, e.config.JWT.AccessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for p.
func (e *Engine) IssueRefreshToken(p Principal) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.Issue(p.Username, p.UserID, p.Roles, jwt.TypeRefresh, e.config.JWT.RefreshTTL)
}

func (e *Engine) issuePair(p Principal) (TokenPair, error) {
	now := e.now()

	access, err := e.IssueAccessToken(p)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.IssueRefreshToken(p)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}, nil
}

// ValidateToken checks token against p without touching any store: the signature must verify,
// the subject must be p's username, the token must be unexpired and it must not predate
// passwordChangedAt. Either token type is accepted.
func (e *Engine) ValidateToken(token string, p Principal, passwordChangedAt time.Time) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrAuthenticationRequired
	}

	claims, err := e.jwtManager.Decode(token)
	if err != nil {
		return decodeError(err)
	}

	account := flows.Account{
		ID:                p.UserID,
		Username:          p.Username,
		Enabled:           true,
		PasswordChangedAt: passwordChangedAt,
	}
	if account.ID == "" {
		account.ID = claims.UserID
	}
	return checkError(flows.CheckClaims(claims, account, e.now()))
}

// Refresh rotates refreshToken into a new pair. The presented token is revoked before the new
// pair is issued; presenting it again fails with [ErrRefreshReuse].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrRefreshMissing
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	res := e.flows.Refresh(ctx, refreshToken)

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		userID, username := "", ""
		if res.Claims != nil {
			userID, username = res.Claims.UserID, res.Claims.Subject
		}
		e.logger.ErrorContext(ctx, "refresh token reuse detected",
			"user_id", userID,
			"username", username,
			"ip", ClientIPFromContext(ctx),
		)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, SeverityCritical, false, userID, username, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	case flows.RefreshFailureRevocationUnavailable:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRevocationDegraded)
		e.logger.WarnContext(ctx, "refresh rejected, revocation store unavailable", "error", res.Err)
		err := fmt.Errorf("%w: %w", ErrRevocationUnavailable, res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityWarning, false, claimsUserID(res.Claims), "", err, nil)
		return nil, err
	default:
		e.metricInc(MetricRefreshFailure)
		err := e.refreshFailureError(res)
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityWarning, false, claimsUserID(res.Claims), "", err, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res)}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, res.Account.ID, res.Account.Username, nil, nil)

	return &LoginResult{
		Tokens: TokenPair(res.Tokens),
		User: UserSummary{
			ID:       res.Account.ID,
			Username: res.Account.Username,
			Email:    res.Account.Email,
			Roles:    res.Account.Roles,
		},
	}, nil
}

func (e *Engine) refreshFailureError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return decodeError(res.Err)
	case flows.RefreshFailureCheck:
		return checkError(res.Check)
	case flows.RefreshFailureAccountLookup:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, res.Err)
	default:
		return res.Err
	}
}

func refreshFailureReason(res flows.RefreshResult) string {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return "decode_" + jwt.KindOf(res.Err).String()
	case flows.RefreshFailureCheck:
		return checkReason(res.Check)
	case flows.RefreshFailureAccountLookup:
		return "account_lookup"
	case flows.RefreshFailureIssue:
		return "issue"
	default:
		return "unknown"
	}
}

// Authenticate validates a bearer access token for a protected request. Roles come from the
// token; the user record is consulted only for the password epoch and the enabled flag.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrAuthenticationRequired
	}

	start := time.Now()
	if e.metrics.LatencyEnabled() {
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, accessToken)

	var err error
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureDecode:
		err = decodeError(res.Err)
	case flows.ValidateFailureRevoked:
		err = ErrTokenRevoked
	case flows.ValidateFailureRevocationUnavailable:
		e.metricInc(MetricRevocationDegraded)
		e.logger.WarnContext(ctx, "authentication rejected, revocation store unavailable", "error", res.Err)
		err = fmt.Errorf("%w: %w", ErrRevocationUnavailable, res.Err)
	case flows.ValidateFailureAccountLookup:
		err = fmt.Errorf("%w: %w", ErrProviderUnavailable, res.Err)
	case flows.ValidateFailureCheck:
		err = checkError(res.Check)
	default:
		err = ErrTokenInvalid
	}
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if !errors.Is(err, ErrTokenExpired) {
			e.emitAudit(ctx, auditEventAuthenticationFailure, SeverityInfo, false, claimsUserID(res.Claims), "", err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &AuthResult{
		UserID:    res.Claims.UserID,
		Username:  res.Claims.Subject,
		Roles:     res.Claims.Roles,
		TokenID:   res.Claims.ID,
		IssuedAt:  res.Claims.IssuedAt,
		ExpiresAt: res.Claims.ExpiresAt,
	}, nil
}

func decodeError(err error) error {
	if jwt.KindOf(err) == jwt.KindExpired {
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
}

func checkError(kind flows.CheckFailureKind) error {
	switch kind {
	case flows.CheckOK:
		return nil
	case flows.CheckExpired:
		return ErrTokenExpired
	case flows.CheckPasswordChanged:
		return fmt.Errorf("%w: issued before the last password change", ErrTokenRevoked)
	case flows.CheckDisabled:
		return ErrAccountDisabled
	default:
		return fmt.Errorf("%w: subject mismatch", ErrTokenInvalid)
	}
}

func checkReason(kind flows.CheckFailureKind) string {
	switch kind {
	case flows.CheckExpired:
		return "expired"
	case flows.CheckPasswordChanged:
		return "password_changed"
	case flows.CheckDisabled:
		return "disabled"
	default:
		return "subject_mismatch"
	}
}

func claimsUserID(c *jwt.Claims) string {
	if c == nil {
		return ""
	}
	return c.UserID
}
