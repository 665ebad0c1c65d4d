package auth

import "errors"

var (
	// ErrUnauthenticated covers missing, malformed, expired and revoked
	// credentials alike; callers never learn which.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden indicates a role or grid-scope violation.
	ErrForbidden = errors.New("auth: forbidden")
)
