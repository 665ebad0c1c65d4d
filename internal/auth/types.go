package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the business role attached to every user account.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleGridManager Role = "grid_manager"
	RoleMediator    Role = "mediator"
)

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleGridManager:
		return RoleGridManager, nil
	case RoleMediator:
		return RoleMediator, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Principal is the resolved identity attached to an authenticated request.
// GridID is the managed grid for a grid manager and the operational grid for
// a mediator; it is empty for admins and for staff without a grid binding.
type Principal struct {
	UserID string
	Role   Role
	GridID string
}

// TokenKind distinguishes the two credential types held by the cache.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenRecord is the cached state of one opaque bearer credential.
type TokenRecord struct {
	Token     string
	UserID    string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool

	// AccessToken links a refresh record to the access token it can rotate.
	AccessToken string
}

// Valid reports whether the record is usable at the given instant.
func (r TokenRecord) Valid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Session is the credential pair returned by login and refresh.
type Session struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	ExpiresIn        int64     `json:"expires_in"`
}
