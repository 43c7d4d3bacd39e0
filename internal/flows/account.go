package flows

import (
	"time"

	"github.com/aloneinabyss/lovelace/jwt"
)

// Account is the part of a user record the token flows need.
type Account struct {
	ID                string
	Username          string
	Email             string
	Roles             []string
	Enabled           bool
	PasswordChangedAt time.Time
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// CheckFailureKind classifies why decoded claims were rejected for an account.
type CheckFailureKind int

const (
	CheckOK CheckFailureKind = iota
	CheckSubjectMismatch
	CheckExpired
	CheckPasswordChanged
	CheckDisabled
)

// CheckClaims validates already-decoded claims against the current account state.
//
// The password-change epoch is compared at millisecond resolution, which is the resolution of
// the issued-at claim. A token issued in the same millisecond as the change is accepted.
func CheckClaims(claims *jwt.Claims, account Account, now time.Time) CheckFailureKind {
	if claims.Subject != account.Username || claims.UserID != account.ID {
		return CheckSubjectMismatch
	}
	if !now.Before(claims.ExpiresAt) {
		return CheckExpired
	}
	if !account.PasswordChangedAt.IsZero() &&
		claims.IssuedAt.Before(account.PasswordChangedAt.Truncate(time.Millisecond)) {
		return CheckPasswordChanged
	}
	if !account.Enabled {
		return CheckDisabled
	}
	return CheckOK
}
