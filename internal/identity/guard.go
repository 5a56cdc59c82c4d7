package identity

import (
	"context"
	"log/slog"
	"sync"
)

// SessionGuard filters the provider's auth-state stream. While a login
// attempt intentionally holds an intermediate session (established by
// the password check but not yet confirmed by a second factor), the
// guard suppresses session-established notifications so no listener
// mistakes the intermediate state for a completed login.
//
// The suppression flag is a scoped resource: it is raised through
// Suppress or WithSuppressed and always restored to its prior value,
// including on error and panic paths.
type SessionGuard struct {
	provider Provider
	logger   *slog.Logger

	mu         sync.Mutex
	suppressed bool
}

// NewSessionGuard wraps the provider's notification stream.
func NewSessionGuard(provider Provider, logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		provider: provider,
		logger:   logger,
	}
}

// Suppressed reports the current state of the flag.
func (g *SessionGuard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}

// Suppress raises the flag and returns a release function restoring the
// prior value. The release is idempotent; the caller must invoke it on
// every exit path of the span it protects. Use Suppress (rather than
// WithSuppressed) when the span crosses a handler return, as it does
// between discarding a session and completing or abandoning OTP.
func (g *SessionGuard) Suppress() (release func()) {
	g.mu.Lock()
	prior := g.suppressed
	g.suppressed = true
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.suppressed = prior
			g.mu.Unlock()
		})
	}
}

// WithSuppressed runs fn with the flag raised and restores it on every
// exit path, including panics.
func (g *SessionGuard) WithSuppressed(ctx context.Context, fn func(ctx context.Context) error) error {
	release := g.Suppress()
	defer release()
	return fn(ctx)
}

// OnSessionEstablished subscribes to session-established notifications
// through the guard. The handler fires only when the flag is down at
// the moment the notification arrives.
func (g *SessionGuard) OnSessionEstablished(handler func(session *Session)) (unsubscribe func()) {
	return g.provider.OnAuthStateChange(func(event AuthEvent, session *Session) {
		if event != EventSignedIn || session == nil {
			return
		}
		if g.Suppressed() {
			g.logger.Debug("session notification suppressed during login flow")
			return
		}
		handler(session)
	})
}
