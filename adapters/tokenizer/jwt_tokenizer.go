package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/sepha/core"
	"github.com/layer-3/sepha/ports"
)

const DefaultIssuer = "sepha"

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	key    *Key
	issuer string
	now    func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock replaces the clock used to validate expiry
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(key *Key, issuer string, opts ...Option) ports.Tokenizer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	j := &JWTTokenizer{key: key, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ChallengeToToken converts a Challenge to a JWT token
func (j *JWTTokenizer) ChallengeToToken(challenge *core.Challenge) (string, error) {
	claims := InitClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   core.SubjectInit,
			ID:        challenge.ID,
			ExpiresAt: jwt.NewNumericDate(challenge.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(challenge.IssuedAt),
		},
		UserID:      challenge.UserID,
		PublicToken: challenge.PublicToken,
	}
	return j.sign(claims)
}

// TokenToChallenge converts a JWT token to a Challenge
func (j *JWTTokenizer) TokenToChallenge(tokenStr string) (*core.Challenge, error) {
	claims := &InitClaims{}
	if err := j.parse(tokenStr, core.SubjectInit, claims); err != nil {
		return nil, err
	}

	return &core.Challenge{
		ID:          claims.ID,
		UserID:      claims.UserID,
		PublicToken: claims.PublicToken,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// SessionToToken converts a Session to an authentication JWT token
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	claims := AuthenticationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   core.SubjectAuth,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
		},
		UserID: session.UserID,
	}
	return j.sign(claims)
}

// TokenToSession parses an authentication token and returns the session
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	claims := &AuthenticationClaims{}
	if err := j.parse(tokenStr, core.SubjectAuth, claims); err != nil {
		return nil, err
	}

	return &core.Session{
		ID:        claims.ID,
		UserID:    claims.UserID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.key.Method, claims)

	signedToken, err := token.SignedString(j.key.signKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSigning, err)
	}

	return signedToken, nil
}

func (j *JWTTokenizer) parse(tokenStr, subject string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return j.key.verifyKey, nil
	},
		jwt.WithValidMethods([]string{j.key.Method.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", classify(err))
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}

	return nil
}

// classify maps jwt parser errors onto the core token errors. Signature
// problems are checked before claims because the parser verifies them first.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return core.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return core.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidSubject):
		return core.ErrInvalidSubject
	default:
		return core.ErrInvalidToken
	}
}
