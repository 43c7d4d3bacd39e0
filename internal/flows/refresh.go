package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aloneinabyss/lovelace/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureReuse
	RefreshFailureRevocationUnavailable
	RefreshFailureDecode
	RefreshFailureAccountLookup
	RefreshFailureCheck
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Check   CheckFailureKind
	Err     error
	Claims  *jwt.Claims
	Account Account
	Tokens  TokenPair
}

type RefreshRevocationStore interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	RevokeOnce(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	DecodeRefresh   func(string) (*jwt.Claims, error)
	LoadAccount     func(ctx context.Context, username string) (Account, error)
	IssuePair       func(Account) (TokenPair, error)
	Now             func() time.Time
	Revocation      RefreshRevocationStore
	AccountNotFound error
}

// RunRefresh exchanges a refresh token for a new pair.
//
// A token is claimed with a set-if-absent revocation before the new pair is issued, so at most
// one caller can ever exchange it. A token that is already revoked, or whose claim is lost to a
// concurrent caller, is reported as reuse.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	revoked, err := deps.Revocation.IsRevoked(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRevocationUnavailable, Err: err}
	}
	if revoked {
		res := RefreshResult{Failure: RefreshFailureReuse}
		// Best-effort identification for the alert; the token may be expired by now.
		if claims, err := deps.DecodeRefresh(refreshToken); err == nil {
			res.Claims = claims
		}
		return res
	}

	claims, err := deps.DecodeRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	account, err := deps.LoadAccount(ctx, claims.Subject)
	if err != nil {
		if deps.AccountNotFound != nil && errors.Is(err, deps.AccountNotFound) {
			return RefreshResult{Failure: RefreshFailureCheck, Check: CheckSubjectMismatch, Err: err, Claims: claims}
		}
		return RefreshResult{Failure: RefreshFailureAccountLookup, Err: err, Claims: claims}
	}

	now := deps.Now()
	if kind := CheckClaims(claims, account, now); kind != CheckOK {
		return RefreshResult{Failure: RefreshFailureCheck, Check: kind, Claims: claims, Account: account}
	}

	claimed, err := deps.Revocation.RevokeOnce(ctx, refreshToken, claims.Remaining(now))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRevocationUnavailable, Err: err, Claims: claims, Account: account}
	}
	if !claimed {
		return RefreshResult{Failure: RefreshFailureReuse, Claims: claims, Account: account}
	}

	pair, err := deps.IssuePair(account)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Claims: claims, Account: account}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		Claims:  claims,
		Account: account,
		Tokens:  pair,
	}
}
