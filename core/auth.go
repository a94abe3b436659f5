package core

import "time"

const (
	// SubjectInit marks a challenge token handed out by the init endpoint
	SubjectInit = "init"

	// SubjectAuth marks a session token issued after a successful ownership check
	SubjectAuth = "auth_token"

	// ChallengeTTL is how long a user has to publish the public token
	ChallengeTTL = 5 * time.Minute

	// SessionTTL is how long an authentication token stays valid
	SessionTTL = time.Hour
)

// Challenge represents an outstanding ownership challenge
type Challenge struct {
	ID          string    // Token identifier, only used to correlate events
	UserID      uint64    // Numeric plug.dj user id
	PublicToken string    // Value the user has to put in their profile blurb
	IssuedAt    time.Time // When the challenge was created
	ExpiresAt   time.Time // When the challenge expires
}

// Session represents a confirmed account ownership
type Session struct {
	ID        string    // Token identifier
	UserID    uint64    // Numeric plug.dj user id
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}
