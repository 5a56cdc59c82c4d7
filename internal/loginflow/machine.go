package loginflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mereside/opsgate/internal/identity"
	"github.com/mereside/opsgate/internal/models"
	"github.com/mereside/opsgate/internal/otp"
	"github.com/mereside/opsgate/pkg/logger"
)

// User-facing messages. Authentication rejections share one generic
// message so responses do not reveal which part was wrong.
const (
	MsgInvalidCredentials = "invalid email or password"
	MsgServiceUnavailable = "service temporarily unavailable, please try again"
	MsgStartOver          = "could not complete sign-in, please start over"
)

// CredentialVerifier checks a password against the identity provider.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) identity.Outcome
	SignOut(ctx context.Context) error
}

// SuppressionGuard brackets the window in which session-change events
// must not be acted on.
type SuppressionGuard interface {
	Suppress() (release func())
	Suppressed() bool
}

// DeviceTrust answers and records trust decisions for a device.
type DeviceTrust interface {
	IsTrusted(ctx context.Context, email, fingerprint string) bool
	RegisterTrusted(ctx context.Context, email, fingerprint string) error
}

// ChallengeService issues and verifies one-time codes.
type ChallengeService interface {
	Issue(ctx context.Context, email string) (*otp.IssueResult, error)
	Verify(ctx context.Context, email, code string) (*otp.VerifyResult, error)
}

// MachineConfig holds per-attempt timing knobs.
type MachineConfig struct {
	ResendCooldown time.Duration
	AttemptTTL     time.Duration
}

// Machine drives one login attempt through credentials, an optional
// one-time-code step, and into a final session. Transitions are
// serialized: a second transition attempted while one is in flight is
// rejected rather than raced. A Back or Close during an in-flight
// transition advances the epoch so the stale result is discarded when
// it lands.
type Machine struct {
	id          string
	fingerprint string

	verifier   CredentialVerifier
	guard      SuppressionGuard
	trust      DeviceTrust
	challenges ChallengeService
	cfg        MachineConfig

	logger      *slog.Logger
	auditLogger *logger.AuditLogger

	mu        sync.Mutex
	state     State
	busy      bool
	closed    bool
	epoch     int
	email     string
	password  string
	release   func()
	cooldown  *Cooldown
	expiresAt time.Time
}

func NewMachine(
	fingerprint string,
	verifier CredentialVerifier,
	guard SuppressionGuard,
	trust DeviceTrust,
	challenges ChallengeService,
	cfg MachineConfig,
	log *slog.Logger,
	auditLogger *logger.AuditLogger,
) *Machine {
	return &Machine{
		id:          uuid.NewString(),
		fingerprint: fingerprint,
		verifier:    verifier,
		guard:       guard,
		trust:       trust,
		challenges:  challenges,
		cfg:         cfg,
		logger:      log,
		auditLogger: auditLogger,
		state:       Credentials{},
		cooldown:    NewCooldown(),
		expiresAt:   time.Now().Add(cfg.AttemptTTL),
	}
}

// ID returns the attempt identifier carried in the challenge token.
func (m *Machine) ID() string {
	return m.id
}

// Expired reports whether the attempt has outlived its allowed span.
func (m *Machine) Expired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !now.Before(m.expiresAt)
}

// State returns a snapshot of the current step, with the live resend
// countdown filled in for the otp step.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	if s, ok := m.state.(AwaitingCode); ok {
		s.ResendIn = m.cooldown.Remaining()
		return s
	}
	return m.state
}

// SubmitCredentials runs the first step: password check, then trust
// lookup. A trusted device authenticates immediately; an untrusted one
// has its fresh session deliberately discarded before a code goes out,
// with session-change suppression held until the code is verified.
func (m *Machine) SubmitCredentials(ctx context.Context, email, password string) (State, error) {
	epoch, err := m.begin(StepCredentials)
	if err != nil {
		return m.State(), err
	}
	defer m.end()

	outcome := m.verifier.Verify(ctx, email, password)
	if !outcome.Authenticated() {
		msg := MsgInvalidCredentials
		if outcome.Reason == identity.ReasonServiceError {
			msg = MsgServiceUnavailable
			m.logger.Error("credential verification unavailable",
				slog.String("email", logger.SanitizedEmail(email)),
				slog.Any("error", outcome.Err))
		}
		m.commit(epoch, func() { m.state = Credentials{Message: msg} })
		return m.State(), nil
	}

	// A live session now exists that must not leak to ambient
	// listeners until the device is known to be trusted.
	release := m.guard.Suppress()
	if !m.commit(epoch, func() {
		m.email = email
		m.password = password
		m.release = release
	}) {
		release()
		_ = m.verifier.SignOut(ctx)
		return m.State(), models.ErrAttemptNotFound
	}

	if m.trust.IsTrusted(ctx, email, m.fingerprint) {
		m.auditLogger.LogAuthAttempt(logger.AuditEvent{
			EventType:   "login_completed",
			Email:       email,
			AttemptID:   m.id,
			Fingerprint: m.fingerprint,
			Success:     true,
			Metadata:    map[string]string{"second_factor": "skipped_trusted_device"},
		})
		m.finish(epoch, Authenticated{Session: outcome.Session})
		return m.State(), nil
	}

	// Untrusted device: the session must not be observable while the
	// second factor is outstanding.
	if err := m.verifier.SignOut(ctx); err != nil {
		m.logger.Error("failed to discard pre-challenge session",
			slog.String("attempt_id", m.id),
			slog.Any("error", err))
		m.finish(epoch, Credentials{Message: MsgServiceUnavailable})
		return m.State(), nil
	}

	result, err := m.challenges.Issue(ctx, email)
	if err != nil {
		m.logger.Error("failed to issue login code",
			slog.String("attempt_id", m.id),
			slog.Any("error", err))
		m.finish(epoch, Credentials{Message: MsgServiceUnavailable})
		return m.State(), nil
	}

	if !m.commit(epoch, func() {
		m.cooldown.Start(m.cfg.ResendCooldown)
		m.state = AwaitingCode{DeliveryMethod: result.Method, SentTo: result.SentTo}
	}) {
		release()
		return m.State(), models.ErrAttemptNotFound
	}
	return m.State(), nil
}

// SubmitCode runs the second step. On a valid code, suppression is
// lifted first and only then is the session re-established, so the
// sign-in event that mints the final session propagates normally.
func (m *Machine) SubmitCode(ctx context.Context, code string) (State, error) {
	epoch, err := m.begin(StepOTP)
	if err != nil {
		return m.State(), err
	}
	defer m.end()

	m.mu.Lock()
	email, password := m.email, m.password
	m.mu.Unlock()

	result, err := m.challenges.Verify(ctx, email, code)
	if err != nil {
		m.logger.Error("code verification unavailable",
			slog.String("attempt_id", m.id),
			slog.Any("error", err))
		m.finish(epoch, Credentials{Message: MsgServiceUnavailable})
		return m.State(), nil
	}

	if !result.Valid {
		// The cooldown and delivery method are left untouched so a
		// typo does not delay or re-route the next resend.
		m.commit(epoch, func() {
			if s, ok := m.state.(AwaitingCode); ok {
				s.Message = result.Reason
				m.state = s
			}
		})
		return m.State(), nil
	}

	if !m.releaseSuppression(epoch) {
		// Superseded by Back or Close while the code was in flight.
		return m.State(), nil
	}

	outcome := m.verifier.Verify(ctx, email, password)
	if !outcome.Authenticated() {
		if outcome.Reason == identity.ReasonServiceError {
			m.logger.Error("failed to re-establish session after code verification",
				slog.String("attempt_id", m.id),
				slog.Any("error", outcome.Err))
			m.finish(epoch, Credentials{Message: MsgServiceUnavailable})
		} else {
			// The password stopped working between the two steps.
			m.finish(epoch, Failed{Message: MsgStartOver})
		}
		return m.State(), nil
	}

	if err := m.trust.RegisterTrusted(ctx, email, m.fingerprint); err != nil {
		m.logger.Warn("device trust registration failed",
			slog.String("attempt_id", m.id),
			slog.Any("error", err))
	}

	m.auditLogger.LogAuthAttempt(logger.AuditEvent{
		EventType:   "login_completed",
		Email:       email,
		AttemptID:   m.id,
		Fingerprint: m.fingerprint,
		Success:     true,
		Metadata:    map[string]string{"second_factor": "otp"},
	})
	m.finish(epoch, Authenticated{Session: outcome.Session})
	return m.State(), nil
}

// Resend repeats code issuance once the cooldown has elapsed. The
// delivery method is taken from the new response, not assumed from the
// previous one.
func (m *Machine) Resend(ctx context.Context) (State, error) {
	epoch, err := m.begin(StepOTP)
	if err != nil {
		return m.State(), err
	}
	defer m.end()

	if !m.cooldown.CanResend() {
		return m.State(), models.ErrResendNotReady
	}

	m.mu.Lock()
	email := m.email
	m.mu.Unlock()

	result, err := m.challenges.Issue(ctx, email)
	if err != nil {
		m.logger.Error("failed to reissue login code",
			slog.String("attempt_id", m.id),
			slog.Any("error", err))
		m.finish(epoch, Credentials{Message: MsgServiceUnavailable})
		return m.State(), nil
	}

	m.commit(epoch, func() {
		m.cooldown.Start(m.cfg.ResendCooldown)
		if s, ok := m.state.(AwaitingCode); ok {
			s.DeliveryMethod = result.Method
			s.SentTo = result.SentTo
			s.Message = ""
			m.state = s
		}
	})
	return m.State(), nil
}

// Back abandons the second step: the code state is dropped, the
// cooldown canceled outright, and suppression released. It is allowed
// even while another transition is in flight; the epoch bump makes
// that transition's result land on the floor.
func (m *Machine) Back() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.stateLocked(), models.ErrAttemptNotFound
	}
	if m.state.Step() != StepOTP {
		return m.stateLocked(), models.ErrInvalidTransition
	}

	m.epoch++
	m.cooldown.Cancel()
	if m.release != nil {
		m.release()
		m.release = nil
	}
	m.state = Credentials{}
	return m.stateLocked(), nil
}

// Close tears the attempt down: any held suppression is released and
// in-flight transitions are invalidated. Safe to call more than once.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.epoch++
	m.cooldown.Cancel()
	if m.release != nil {
		m.release()
		m.release = nil
	}
}

// begin admits a transition from the given step, rejecting re-entrant
// submissions while a prior transition is still outstanding.
func (m *Machine) begin(from Step) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, models.ErrAttemptNotFound
	}
	if m.busy {
		return 0, models.ErrTransitionInProgress
	}
	if m.state.Step() != from {
		return 0, models.ErrInvalidTransition
	}
	m.busy = true
	m.epoch++
	return m.epoch, nil
}

func (m *Machine) end() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// commit applies fn unless the attempt was superseded by a Back or
// Close since the transition began.
func (m *Machine) commit(epoch int, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.epoch != epoch {
		return false
	}
	fn()
	return true
}

// finish releases any held suppression, stops the cooldown and settles
// the attempt into the given state.
func (m *Machine) finish(epoch int, s State) bool {
	return m.commit(epoch, func() {
		if m.release != nil {
			m.release()
			m.release = nil
		}
		m.cooldown.Cancel()
		m.state = s
	})
}

// releaseSuppression lifts suppression without changing state.
func (m *Machine) releaseSuppression(epoch int) bool {
	return m.commit(epoch, func() {
		if m.release != nil {
			m.release()
			m.release = nil
		}
	})
}
