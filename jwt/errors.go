package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeErrorKind is the reason a token failed to decode.
type DecodeErrorKind int

const (
	// KindMalformed covers structurally invalid tokens and claim-set violations.
	KindMalformed DecodeErrorKind = iota + 1
	// KindExpired means the signature was valid but exp has passed.
	KindExpired
	// KindBadSignature means the signature did not verify or the algorithm was rejected.
	KindBadSignature
	// KindWrongType means a refresh token was used as an access token or vice versa.
	KindWrongType
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindBadSignature:
		return "bad_signature"
	case KindWrongType:
		return "wrong_type"
	default:
		return "unknown"
	}
}

// DecodeError is returned by every Manager decode path.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "jwt: " + e.Kind.String()
	}
	return "jwt: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// KindOf returns the decode failure kind of err, or 0 when err is not a *DecodeError.
func KindOf(err error) DecodeErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func classify(err error) *DecodeError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &DecodeError{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &DecodeError{Kind: KindBadSignature, Err: err}
	default:
		return &DecodeError{Kind: KindMalformed, Err: err}
	}
}
