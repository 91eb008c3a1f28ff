package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthorized matches every token verification failure.
var ErrUnauthorized = errors.New("unauthorized")

// FailureReason tells why a token was rejected. It is meant for logs only.
type FailureReason int

const (
	ReasonMissing FailureReason = iota + 1
	ReasonMalformed
	ReasonExpired
	ReasonBadSignature
)

func (r FailureReason) String() string {
	switch r {
	case ReasonMissing:
		return "missing"
	case ReasonMalformed:
		return "malformed"
	case ReasonExpired:
		return "expired"
	case ReasonBadSignature:
		return "bad signature"
	}

	return "unknown"
}

// Failure is the error returned for a rejected token.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return "unauthorized (" + f.Reason.String() + "): " + f.Err.Error()
	}

	return "unauthorized (" + f.Reason.String() + ")"
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is makes every Failure match ErrUnauthorized.
func (f *Failure) Is(target error) bool {
	return target == ErrUnauthorized
}

// reasonFromJWTError maps a jwt parse error to a reason. A bad signature wins
// over expiry so an expired token signed with another key reads as forged.
func reasonFromJWTError(err error) FailureReason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	}

	return ReasonMalformed
}
