package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aloneinabyss/lovelace/jwt"
)

// ValidateFailureKind classifies access-token validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureDecode
	ValidateFailureRevoked
	ValidateFailureRevocationUnavailable
	ValidateFailureAccountLookup
	ValidateFailureCheck
)

// ValidateResult returns either the accepted claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Check   CheckFailureKind
	Err     error
	Claims  *jwt.Claims
}

type ValidateRevocationStore interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// ValidateDeps captures guard-path validation dependencies.
type ValidateDeps struct {
	DecodeAccess    func(string) (*jwt.Claims, error)
	LoadAccount     func(ctx context.Context, userID string) (Account, error)
	Now             func() time.Time
	Revocation      ValidateRevocationStore
	AccountNotFound error
}

// RunValidate authenticates an access token: signature, expiry, type, blacklist, password
// epoch and account state. Revocation lookups fail closed.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.DecodeAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDecode, Err: err}
	}

	revoked, err := deps.Revocation.IsRevoked(ctx, tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureRevocationUnavailable, Err: err, Claims: claims}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Claims: claims}
	}

	account, err := deps.LoadAccount(ctx, claims.UserID)
	if err != nil {
		if deps.AccountNotFound != nil && errors.Is(err, deps.AccountNotFound) {
			return ValidateResult{Failure: ValidateFailureCheck, Check: CheckSubjectMismatch, Err: err, Claims: claims}
		}
		return ValidateResult{Failure: ValidateFailureAccountLookup, Err: err, Claims: claims}
	}

	if kind := CheckClaims(claims, account, deps.Now()); kind != CheckOK {
		return ValidateResult{Failure: ValidateFailureCheck, Check: kind, Claims: claims}
	}

	return ValidateResult{Claims: claims}
}
