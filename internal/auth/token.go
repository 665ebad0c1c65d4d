package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 2 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenCache is the shared TTL-expiring store token records live in. It is an
// injected collaborator, never ambient state: correctness relies only on the
// cache's own atomic operations.
type TokenCache interface {
	Put(ctx context.Context, rec TokenRecord) error
	Get(ctx context.Context, token string) (TokenRecord, bool, error)
	Delete(ctx context.Context, token string) error
}

// PrincipalResolver turns a cached user id into a live principal. Validation
// fails when the account no longer exists or has been deactivated.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (Principal, error)
}

// TokenStore issues, validates and revokes opaque bearer credentials.
type TokenStore struct {
	cache      TokenCache
	resolver   PrincipalResolver
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenStore behavior.
type TokenOption func(*TokenStore)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenStore) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenStore) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenStore constructs a TokenStore over the given cache and resolver.
func NewTokenStore(cache TokenCache, resolver PrincipalResolver, opts ...TokenOption) (*TokenStore, error) {
	if cache == nil {
		return nil, errors.New("token cache is required")
	}
	if resolver == nil {
		return nil, errors.New("principal resolver is required")
	}
	s := &TokenStore{
		cache:      cache,
		resolver:   resolver,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenStore) AccessTTL() time.Duration { return s.accessTTL }

// newToken generates a globally unique opaque credential string.
func newToken() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Issue creates a fresh access token for the user. Tokens already held by the
// user stay valid: multiple concurrent sessions are supported.
func (s *TokenStore) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := s.now().UTC()
	rec := TokenRecord{
		Token:     newToken(),
		UserID:    userID,
		Kind:      TokenKindAccess,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}
	if err := s.cache.Put(ctx, rec); err != nil {
		return "", time.Time{}, err
	}
	return rec.Token, rec.ExpiresAt, nil
}

// IssueSession creates an access/refresh token pair for the user.
func (s *TokenStore) IssueSession(ctx context.Context, userID string) (Session, error) {
	access, accessExp, err := s.Issue(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	refresh := TokenRecord{
		Token:       newToken(),
		UserID:      userID,
		Kind:        TokenKindRefresh,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
		AccessToken: access,
	}
	if err := s.cache.Put(ctx, refresh); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:      access,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refresh.ExpiresAt,
		ExpiresIn:        int64(s.accessTTL / time.Second),
	}, nil
}

// Validate resolves an access token to its owning principal. It fails with
// ErrUnauthenticated if the token is unknown, revoked, expired, the wrong
// kind, or if the owning account is gone or inactive.
func (s *TokenStore) Validate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	rec, ok, err := s.cache.Get(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if !ok || rec.Kind != TokenKindAccess || !rec.Valid(s.now().UTC()) {
		return Principal{}, ErrUnauthenticated
	}
	principal, err := s.resolver.ResolvePrincipal(ctx, rec.UserID)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	return principal, nil
}

// Revoke marks the token revoked immediately. Revoking an unknown or
// already-revoked token is a no-op, not an error.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	rec, ok, err := s.cache.Get(ctx, token)
	if err != nil {
		return err
	}
	if !ok || rec.Revoked {
		return nil
	}
	rec.Revoked = true
	return s.cache.Put(ctx, rec)
}

// Refresh rotates the access token bound to the given refresh token. The old
// access token is revoked; the refresh token itself stays valid until expiry.
func (s *TokenStore) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	rec, ok, err := s.cache.Get(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	if !ok || rec.Kind != TokenKindRefresh || !rec.Valid(s.now().UTC()) {
		return Session{}, ErrUnauthenticated
	}
	if rec.AccessToken != "" {
		if err := s.Revoke(ctx, rec.AccessToken); err != nil {
			return Session{}, err
		}
	}
	access, accessExp, err := s.Issue(ctx, rec.UserID)
	if err != nil {
		return Session{}, err
	}
	rec.AccessToken = access
	if err := s.cache.Put(ctx, rec); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		ExpiresIn:       int64(s.accessTTL / time.Second),
	}, nil
}
