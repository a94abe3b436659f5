package sepha

import (
	"errors"
)

var (
	// ErrRejected is returned when the relay refuses a challenge secret.
	// The wrapping error carries the relay's reason.
	ErrRejected = errors.New("authentication rejected")

	// ErrUpstream is returned when the relay could not reach plug.dj
	ErrUpstream = errors.New("relay upstream lookup failed")

	// ErrUnexpectedStatus is returned for any status code the relay does not document
	ErrUnexpectedStatus = errors.New("unexpected status code")
)
