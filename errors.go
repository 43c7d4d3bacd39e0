package lovelace

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for unknown identities and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by providers and by operations that target an unknown account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by providers when a unique identifier is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUsernameTaken rejects registration with a username in use.
	ErrUsernameTaken = errors.New("username is already taken")
	// ErrEmailTaken rejects registration with an email in use.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrInvalidUsername rejects a username outside the allowed pattern or length.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidEmail rejects an address that does not parse.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordPolicy rejects passwords outside the configured length bounds.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrPasswordMustDiffer rejects a new password equal to the current one.
	ErrPasswordMustDiffer = errors.New("new password must be different from current password")
	// ErrCurrentPasswordIncorrect rejects a change-password call with a wrong current password.
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")

	// ErrEmailNotVerified rejects login for an account still pending verification.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailVerificationResent is returned by login when a fresh verification email was queued.
	// It matches ErrEmailNotVerified under errors.Is.
	ErrEmailVerificationResent = fmt.Errorf("%w: verification email re-sent", ErrEmailNotVerified)
	// ErrAccountDisabled rejects login for a verified but disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailAlreadyVerified rejects verification of an active account.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrVerificationPending suppresses a resend while the last token is recent.
	ErrVerificationPending = errors.New("verification email recently sent")
	// ErrInvalidVerificationToken is returned for unknown or used verification tokens.
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	// ErrVerificationTokenExpired is returned for a verification token past its expiry.
	ErrVerificationTokenExpired = errors.New("verification token expired")
	// ErrPasswordResetPending rejects a reset request while the last token is recent.
	ErrPasswordResetPending = errors.New("password reset recently requested")
	// ErrInvalidResetToken is returned for unknown or used reset tokens.
	ErrInvalidResetToken = errors.New("invalid password reset token")
	// ErrResetTokenExpired is returned for a reset token past its expiry.
	ErrResetTokenExpired = errors.New("password reset token expired")

	// ErrAuthenticationRequired is returned when no token was presented.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrTokenExpired is returned for a correctly signed token past exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong token types and subject mismatches.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned for a blacklisted token or one issued before the last password change.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshMissing is returned when the refresh cookie is absent.
	ErrRefreshMissing = errors.New("refresh token missing")
	// ErrRefreshReuse is returned when an already-rotated refresh token is presented again.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrRateLimited is returned when a request bucket is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrRevocationUnavailable is returned when a fail-closed revocation check could not be answered.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
	// ErrNotificationUnavailable is returned when a required notification could not be queued.
	ErrNotificationUnavailable = errors.New("notification could not be queued")
	// ErrProviderUnavailable wraps unexpected UserProvider failures.
	ErrProviderUnavailable = errors.New("user provider unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind is the coarse class of an engine error. Transports map kinds to status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Machine-readable error codes carried in API error bodies.
const (
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeEmailNotVerified         = "EMAIL_NOT_VERIFIED"
	CodeAccountDisabled          = "ACCOUNT_DISABLED"
	CodeTokenExpired             = "TOKEN_EXPIRED"
	CodeTokenInvalid             = "TOKEN_INVALID"
	CodeTokenRevoked             = "TOKEN_REVOKED"
	CodeTokenReused              = "TOKEN_REUSED"
	CodeAuthenticationRequired   = "AUTHENTICATION_REQUIRED"
	CodeRefreshTokenMissing      = "REFRESH_TOKEN_MISSING"
	CodeUsernameTaken            = "USERNAME_TAKEN"
	CodeEmailTaken               = "EMAIL_TAKEN"
	CodeValidationFailed         = "VALIDATION_FAILED"
	CodeInvalidPassword          = "INVALID_PASSWORD"
	CodePasswordMustBeDifferent  = "PASSWORD_MUST_BE_DIFFERENT"
	CodePasswordCurrentIncorrect = "PASSWORD_CURRENT_INCORRECT"
	CodeInvalidToken             = "INVALID_TOKEN"
	CodeEmailAlreadyVerified     = "EMAIL_ALREADY_VERIFIED"
	CodeVerificationPending      = "EMAIL_VERIFICATION_PENDING"
	CodePasswordResetPending     = "PASSWORD_RESET_PENDING"
	CodeUserNotFound             = "USER_NOT_FOUND"
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeEmailSendFailed          = "EMAIL_SEND_FAILED"
	CodeServiceUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternalError            = "INTERNAL_ERROR"
)

type errorClass struct {
	err  error
	kind ErrorKind
	code string
}

// errorClasses is checked in order; wrapped errors match their most specific entry first.
var errorClasses = []errorClass{
	{ErrRefreshReuse, KindAuthentication, CodeTokenReused},
	{ErrEmailVerificationResent, KindForbidden, CodeEmailNotVerified},
	{ErrEmailNotVerified, KindForbidden, CodeEmailNotVerified},
	{ErrAccountDisabled, KindForbidden, CodeAccountDisabled},
	{ErrInvalidCredentials, KindAuthentication, CodeInvalidCredentials},
	{ErrAuthenticationRequired, KindAuthentication, CodeAuthenticationRequired},
	{ErrTokenExpired, KindAuthentication, CodeTokenExpired},
	{ErrTokenRevoked, KindAuthentication, CodeTokenRevoked},
	{ErrTokenInvalid, KindAuthentication, CodeTokenInvalid},
	{ErrRefreshMissing, KindAuthentication, CodeRefreshTokenMissing},
	{ErrUsernameTaken, KindValidation, CodeUsernameTaken},
	{ErrEmailTaken, KindValidation, CodeEmailTaken},
	{ErrInvalidUsername, KindValidation, CodeValidationFailed},
	{ErrInvalidEmail, KindValidation, CodeValidationFailed},
	{ErrPasswordPolicy, KindValidation, CodeInvalidPassword},
	{ErrPasswordMustDiffer, KindValidation, CodePasswordMustBeDifferent},
	{ErrCurrentPasswordIncorrect, KindValidation, CodePasswordCurrentIncorrect},
	{ErrInvalidVerificationToken, KindValidation, CodeInvalidToken},
	{ErrVerificationTokenExpired, KindValidation, CodeTokenExpired},
	{ErrInvalidResetToken, KindValidation, CodeInvalidToken},
	{ErrResetTokenExpired, KindValidation, CodeTokenExpired},
	{ErrEmailAlreadyVerified, KindConflict, CodeEmailAlreadyVerified},
	{ErrVerificationPending, KindConflict, CodeVerificationPending},
	{ErrPasswordResetPending, KindConflict, CodePasswordResetPending},
	{ErrUserNotFound, KindNotFound, CodeUserNotFound},
	{ErrRateLimited, KindRateLimited, CodeRateLimitExceeded},
	{ErrNotificationUnavailable, KindInternal, CodeEmailSendFailed},
	{ErrRevocationUnavailable, KindInternal, CodeServiceUnavailable},
	{ErrProviderUnavailable, KindInternal, CodeServiceUnavailable},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if c, ok := classOf(err); ok {
		return c.kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code for err, or CodeInternalError.
func CodeOf(err error) string {
	if c, ok := classOf(err); ok {
		return c.code
	}
	return CodeInternalError
}

func classOf(err error) (errorClass, bool) {
	if err == nil {
		return errorClass{}, false
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return errorClass{}, false
}
