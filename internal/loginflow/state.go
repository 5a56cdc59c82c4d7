package loginflow

import "github.com/mereside/opsgate/internal/identity"

// Step names the phase of a login attempt.
type Step string

const (
	StepCredentials   Step = "credentials"
	StepOTP           Step = "otp"
	StepAuthenticated Step = "authenticated"
	StepFailed        Step = "failed"
)

// State is the discriminated state of a login attempt. Each variant
// carries only the fields that exist in that phase, so a cooldown or
// delivery method cannot be observed outside the otp step.
type State interface {
	Step() Step
}

// Credentials is the initial step. Message carries a recoverable error
// from a prior submission, empty on a fresh attempt.
type Credentials struct {
	Message string
}

func (Credentials) Step() Step { return StepCredentials }

// AwaitingCode is the second step: a code has been delivered and the
// attempt holds a suppressed, deliberately signed-out session.
type AwaitingCode struct {
	DeliveryMethod string
	SentTo         string
	Message        string
	ResendIn       int
}

func (AwaitingCode) Step() Step { return StepOTP }

// Authenticated is terminal: a live session exists and ambient
// listeners are free to react to it.
type Authenticated struct {
	Session *identity.Session
}

func (Authenticated) Step() Step { return StepAuthenticated }

// Failed is terminal: the attempt cannot continue and the client must
// start a new one.
type Failed struct {
	Message string
}

func (Failed) Step() Step { return StepFailed }
