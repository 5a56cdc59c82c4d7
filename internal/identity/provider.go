// Package identity wraps the upstream identity provider: password
// sign-in, sign-out, session retrieval and the push-style auth-state
// stream. The rest of the login flow only sees the Provider interface
// and the SessionGuard filter in front of its notifications.
package identity

import (
	"context"
	"time"
)

// AuthEvent identifies a change in the provider's session state.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// Session is a live session at the identity provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	ExpiresAt    time.Time
}

// IsExpired reports whether the session's access token has lapsed.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Provider is the boundary to the identity provider. One Provider
// instance tracks one session scope (one login attempt, one browser).
//
// Implementations must make SignOut idempotent: signing out with no
// live session is not an error. OnAuthStateChange handlers may be
// invoked from a separate goroutine at any time after a state change.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(handler func(event AuthEvent, session *Session)) (unsubscribe func())
}
