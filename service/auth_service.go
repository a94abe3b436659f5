package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/sepha/core"
	"github.com/layer-3/sepha/ports"
)

const DefaultPublicTokenLength = 64

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InitResult is handed to the user at the start of the flow. PublicToken goes
// into the profile blurb, Secret is kept and sent back to Authenticate.
type InitResult struct {
	PublicToken string
	Secret      string
}

// AuthService handles the ownership challenge flow
type AuthService struct {
	tokenizer ports.Tokenizer
	profiles  ports.ProfileFetcher
	eventPub  ports.EventPublisher
	log       *slog.Logger
	now       func() time.Time

	publicTokenLength int
}

// Option configures an AuthService
type Option func(*AuthService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) { s.log = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func WithPublicTokenLength(n int) Option {
	return func(s *AuthService) { s.publicTokenLength = n }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	profiles ports.ProfileFetcher,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		tokenizer:         tokenizer,
		profiles:          profiles,
		eventPub:          eventPub,
		log:               slog.New(slog.DiscardHandler),
		now:               time.Now,
		publicTokenLength: DefaultPublicTokenLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates a new ownership challenge for a user
func (s *AuthService) Init(ctx context.Context, userID uint64) (*InitResult, error) {
	publicToken, err := randomString(s.publicTokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate public token: %w", err)
	}

	now := s.now()
	challenge := &core.Challenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		PublicToken: publicToken,
		IssuedAt:    now,
		ExpiresAt:   now.Add(core.ChallengeTTL),
	}

	secret, err := s.tokenizer.ChallengeToToken(challenge)
	if err != nil {
		s.log.ErrorContext(ctx, "challenge.sign_failed", slog.Uint64("user_id", userID), slog.Any("err", err))
		return nil, fmt.Errorf("failed to create challenge token: %w", err)
	}

	s.log.InfoContext(ctx, "challenge.issued", slog.Uint64("user_id", userID), slog.String("token_id", challenge.ID))
	s.publish(ctx, ports.AuthEvent{Type: ports.EventChallengeIssued, UserID: userID, TokenID: challenge.ID})

	return &InitResult{PublicToken: publicToken, Secret: secret}, nil
}

// Authenticate checks that the user behind a challenge token has published
// the challenge's public token as their profile blurb and, if so, returns a
// signed session token.
//
// A challenge token stays usable until it expires; it is not marked as
// consumed.
func (s *AuthService) Authenticate(ctx context.Context, secret string) (string, error) {
	challenge, err := s.tokenizer.TokenToChallenge(secret)
	if err != nil {
		s.log.InfoContext(ctx, "authenticate.rejected", slog.Any("err", err))
		return "", fmt.Errorf("invalid challenge token: %w", err)
	}

	blurb, err := s.profiles.FetchBlurb(ctx, challenge.UserID)
	if err != nil {
		s.log.WarnContext(ctx, "authenticate.upstream_failed",
			slog.Uint64("user_id", challenge.UserID),
			slog.String("token_id", challenge.ID),
			slog.Any("err", err),
		)
		if !errors.Is(err, core.ErrUpstream) {
			err = fmt.Errorf("%w: %v", core.ErrUpstream, err)
		}
		return "", err
	}

	if blurb != challenge.PublicToken {
		s.log.InfoContext(ctx, "authenticate.mismatch",
			slog.Uint64("user_id", challenge.UserID),
			slog.String("token_id", challenge.ID),
		)
		s.publish(ctx, ports.AuthEvent{
			Type:    ports.EventOwnershipDenied,
			UserID:  challenge.UserID,
			TokenID: challenge.ID,
			Reason:  core.ErrBlurbMismatch.Error(),
		})
		return "", core.ErrBlurbMismatch
	}

	return s.issueSession(ctx, challenge.UserID)
}

// Verify reports whether token is a valid, unexpired authentication token
func (s *AuthService) Verify(ctx context.Context, token string) bool {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		s.log.DebugContext(ctx, "verify.rejected", slog.Any("err", err))
		return false
	}

	s.log.DebugContext(ctx, "verify.ok", slog.Uint64("user_id", session.UserID), slog.String("token_id", session.ID))
	return true
}

// MaxSecretSize returns the length of the longest secret Init can issue with
// the configured key, issuer and public token length
func (s *AuthService) MaxSecretSize() (int, error) {
	now := s.now()
	secret, err := s.tokenizer.ChallengeToToken(&core.Challenge{
		ID:          uuid.NewString(),
		UserID:      math.MaxUint64,
		PublicToken: strings.Repeat("z", s.publicTokenLength),
		IssuedAt:    now,
		ExpiresAt:   now.Add(core.ChallengeTTL),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create challenge token: %w", err)
	}
	return len(secret), nil
}

// issueSession is only reached after a successful ownership check
func (s *AuthService) issueSession(ctx context.Context, userID uint64) (string, error) {
	now := s.now()
	session := &core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(core.SessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		s.log.ErrorContext(ctx, "session.sign_failed", slog.Uint64("user_id", userID), slog.Any("err", err))
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	s.log.InfoContext(ctx, "session.issued", slog.Uint64("user_id", userID), slog.String("token_id", session.ID))
	s.publish(ctx, ports.AuthEvent{Type: ports.EventSessionIssued, UserID: userID, TokenID: session.ID})

	return token, nil
}

// publish never fails the request; events are best effort
func (s *AuthService) publish(ctx context.Context, event ports.AuthEvent) {
	event.At = s.now().UTC()
	if err := s.eventPub.PublishAuthEvent(ctx, event); err != nil {
		s.log.WarnContext(ctx, "event.publish_failed", slog.String("type", event.Type), slog.Any("err", err))
	}
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}
