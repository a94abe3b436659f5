package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSigning          = errors.New("failed to sign token")
	ErrUpstream         = errors.New("upstream request failed")
	ErrBlurbMismatch    = errors.New("invalid public_token")
)

// IsTokenError reports whether err is caused by a bad token presented by the
// caller rather than by the relay itself.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSubject) ||
		errors.Is(err, ErrInvalidToken)
}
