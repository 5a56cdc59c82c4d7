package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mereside/opsgate/internal/auth"
	"github.com/mereside/opsgate/internal/models"
)

// RejectReason classifies why a credential check failed.
type RejectReason string

const (
	ReasonInvalidCredentials RejectReason = "invalid_credentials"
	ReasonServiceError       RejectReason = "service_error"
)

// Outcome is the result of a credential check: either a live session or
// a rejection with a classified reason.
type Outcome struct {
	Session *Session
	Reason  RejectReason
	Err     error // underlying cause when Reason == ReasonServiceError
}

// Authenticated reports whether the check produced a live session.
func (o Outcome) Authenticated() bool {
	return o.Session != nil
}

// Verifier checks email/password pairs against the identity provider.
// A successful check leaves a live session at the provider until it is
// explicitly signed out.
type Verifier struct {
	provider Provider
	timing   *auth.TimingDelay
	logger   *slog.Logger
}

// NewVerifier creates a credential verifier over the given provider.
func NewVerifier(provider Provider, timing *auth.TimingDelay, logger *slog.Logger) *Verifier {
	return &Verifier{
		provider: provider,
		timing:   timing,
		logger:   logger,
	}
}

// Verify checks the credentials. Rejections distinguish invalid
// credentials from provider/transport failures so callers can show
// distinct messages and pick the right recovery path.
func (v *Verifier) Verify(ctx context.Context, email, password string) Outcome {
	session, err := v.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			v.logger.Info("credential check failed: invalid credentials")
			if v.timing != nil {
				v.timing.Wait(false)
			}
			return Outcome{Reason: ReasonInvalidCredentials}
		}

		v.logger.Error("credential check failed: provider error", slog.Any("error", err))
		return Outcome{Reason: ReasonServiceError, Err: err}
	}

	return Outcome{Session: session}
}

// SignOut drops the provider session. Calling it when no session exists
// is not an error.
func (v *Verifier) SignOut(ctx context.Context) error {
	return v.provider.SignOut(ctx)
}

// CurrentSession returns the live session, or nil when there is none.
func (v *Verifier) CurrentSession(ctx context.Context) (*Session, error) {
	return v.provider.GetSession(ctx)
}
