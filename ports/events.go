package ports

import (
	"context"
	"time"
)

// Event types published on the audit topic
const (
	EventChallengeIssued = "challenge.issued"
	EventSessionIssued   = "session.issued"
	EventOwnershipDenied = "ownership.denied"
)

// AuthEvent describes a step of the authentication flow. It never carries
// token strings or public tokens.
type AuthEvent struct {
	Type    string    `json:"type"`
	UserID  uint64    `json:"user_id"`
	TokenID string    `json:"token_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// EventPublisher publishes audit events to other services
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event AuthEvent) error
}
