package sepha

import "context"

// Relay represents the public interface of the authentication relay
type Relay interface {
	// Init returns a challenge for the given plug.dj user id
	Init(ctx context.Context, userID uint64) (*Challenge, error)

	// Authenticate exchanges a challenge secret for an authentication token
	// once the user's profile blurb holds the challenge's public token
	Authenticate(ctx context.Context, secret string) (string, error)

	// Verify reports whether an authentication token is still valid
	Verify(ctx context.Context, token string) (bool, error)
}
