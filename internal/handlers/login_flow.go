package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mereside/opsgate/internal/auth"
	"github.com/mereside/opsgate/internal/loginflow"
	"github.com/mereside/opsgate/internal/models"
	pkghttp "github.com/mereside/opsgate/pkg/http"
	"github.com/mereside/opsgate/pkg/logger"
)

// MachineFactory builds a fresh login attempt bound to one device
// fingerprint.
type MachineFactory func(fingerprint string) *loginflow.Machine

// LoginFlowHandler drives the two-step login flow over HTTP. The
// credential step mints a short-lived challenge token binding the
// client to its attempt; the otp, resend and back steps require it.
type LoginFlowHandler struct {
	store       *loginflow.Store
	newMachine  MachineFactory
	tokens      *auth.ChallengeTokenManager
	ipConfig    *pkghttp.IPConfig
	auditLogger *logger.AuditLogger
}

// NewLoginFlowHandler creates a new LoginFlowHandler
func NewLoginFlowHandler(store *loginflow.Store, newMachine MachineFactory, tokens *auth.ChallengeTokenManager, ipConfig *pkghttp.IPConfig, auditLogger *logger.AuditLogger) *LoginFlowHandler {
	return &LoginFlowHandler{
		store:       store,
		newMachine:  newMachine,
		tokens:      tokens,
		ipConfig:    ipConfig,
		auditLogger: auditLogger,
	}
}

// Request DTOs

// CredentialsRequest represents the request body for the first step
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// CodeRequest represents the request body for the second step
type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// SessionResponse carries the final session to the client
type SessionResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FlowResponse reports the step an attempt is on after a transition
type FlowResponse struct {
	Step           string           `json:"step"`
	Message        string           `json:"message,omitempty"`
	DeliveryMethod string           `json:"delivery_method,omitempty"`
	SentTo         string           `json:"sent_to,omitempty"`
	ResendIn       int              `json:"resend_in,omitempty"`
	ChallengeToken string           `json:"challenge_token,omitempty"`
	Session        *SessionResponse `json:"session,omitempty"`
}

// SubmitCredentials handles the first step of the login flow
// @Summary Submit email and password
// @Accept json
// @Param request body CredentialsRequest true "Credentials"
// @Produce json
// @Success 200 {object} FlowResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/flow/credentials [post]
func (h *LoginFlowHandler) SubmitCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	fingerprint := auth.RequestFingerprint(r)
	machine := h.newMachine(fingerprint)
	state, err := machine.SubmitCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	reason := ""
	if c, ok := state.(loginflow.Credentials); ok {
		reason = c.Message
	}
	h.auditLogger.LogAuthAttempt(logger.AuditEvent{
		EventType:     "credentials_submitted",
		Email:         req.Email,
		AttemptID:     machine.ID(),
		IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:     r.UserAgent(),
		Fingerprint:   fingerprint,
		Success:       state.Step() != loginflow.StepCredentials,
		FailureReason: reason,
	})

	switch s := state.(type) {
	case loginflow.Authenticated:
		writeJSON(w, http.StatusOK, FlowResponse{
			Step:    string(loginflow.StepAuthenticated),
			Session: sessionResponse(s),
		})

	case loginflow.AwaitingCode:
		token, err := h.tokens.Generate(machine.ID(), req.Email)
		if err != nil {
			machine.Close()
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		h.store.Put(machine)
		writeJSON(w, http.StatusOK, FlowResponse{
			Step:           string(loginflow.StepOTP),
			DeliveryMethod: s.DeliveryMethod,
			SentTo:         s.SentTo,
			ResendIn:       s.ResendIn,
			ChallengeToken: token,
		})

	case loginflow.Credentials:
		h.writeCredentialsStep(w, s)

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// SubmitCode handles the second step of the login flow
// @Summary Submit the 6-digit code
// @Accept json
// @Param request body CodeRequest true "One-time code"
// @Produce json
// @Success 200 {object} FlowResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/flow/otp [post]
func (h *LoginFlowHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.attemptFromRequest(w, r)
	if !ok {
		return
	}

	var req CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// The code's shape is rejected here, before any store or provider
	// round-trip.
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	state, err := machine.SubmitCode(r.Context(), req.Code)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	switch s := state.(type) {
	case loginflow.Authenticated:
		h.store.Remove(machine.ID())
		writeJSON(w, http.StatusOK, FlowResponse{
			Step:    string(loginflow.StepAuthenticated),
			Session: sessionResponse(s),
		})

	case loginflow.AwaitingCode:
		writeJSON(w, http.StatusUnauthorized, FlowResponse{
			Step:           string(loginflow.StepOTP),
			Message:        s.Message,
			DeliveryMethod: s.DeliveryMethod,
			SentTo:         s.SentTo,
			ResendIn:       s.ResendIn,
		})

	case loginflow.Credentials:
		h.store.Remove(machine.ID())
		h.writeCredentialsStep(w, s)

	case loginflow.Failed:
		h.store.Remove(machine.ID())
		writeJSON(w, http.StatusUnauthorized, FlowResponse{
			Step:    string(loginflow.StepFailed),
			Message: s.Message,
		})

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Resend handles reissuing the one-time code
// @Summary Request a new code
// @Produce json
// @Success 200 {object} FlowResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/flow/resend [post]
func (h *LoginFlowHandler) Resend(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.attemptFromRequest(w, r)
	if !ok {
		return
	}

	state, err := machine.Resend(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrResendNotReady) {
			pkghttp.WriteTooManyRequests(w, "Please wait before requesting a new code")
			return
		}
		h.writeTransitionError(w, err)
		return
	}

	switch s := state.(type) {
	case loginflow.AwaitingCode:
		writeJSON(w, http.StatusOK, FlowResponse{
			Step:           string(loginflow.StepOTP),
			DeliveryMethod: s.DeliveryMethod,
			SentTo:         s.SentTo,
			ResendIn:       s.ResendIn,
		})

	case loginflow.Credentials:
		h.store.Remove(machine.ID())
		h.writeCredentialsStep(w, s)

	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Back handles abandoning the code step
// @Summary Return to the credentials step
// @Produce json
// @Success 200 {object} FlowResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/flow/back [post]
func (h *LoginFlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.attemptFromRequest(w, r)
	if !ok {
		return
	}

	if _, err := machine.Back(); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		h.writeTransitionError(w, err)
		return
	}

	h.store.Remove(machine.ID())
	writeJSON(w, http.StatusOK, FlowResponse{
		Step: string(loginflow.StepCredentials),
	})
}

// attemptFromRequest resolves the attempt named by the challenge token.
func (h *LoginFlowHandler) attemptFromRequest(w http.ResponseWriter, r *http.Request) (*loginflow.Machine, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		pkghttp.WriteUnauthorized(w, "Missing challenge token")
		return nil, false
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Invalid or expired challenge token")
		return nil, false
	}

	machine, err := h.store.Get(claims.AttemptID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Login attempt expired, please sign in again")
		return nil, false
	}

	return machine, true
}

func (h *LoginFlowHandler) writeCredentialsStep(w http.ResponseWriter, s loginflow.Credentials) {
	status := http.StatusUnauthorized
	if s.Message == loginflow.MsgServiceUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, FlowResponse{
		Step:    string(loginflow.StepCredentials),
		Message: s.Message,
	})
}

func (h *LoginFlowHandler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTransitionInProgress):
		pkghttp.WriteConflict(w, "Another request for this attempt is still in progress")
	case errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteConflict(w, "Request does not match the current login step")
	case errors.Is(err, models.ErrAttemptNotFound):
		pkghttp.WriteUnauthorized(w, "Login attempt expired, please sign in again")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func sessionResponse(s loginflow.Authenticated) *SessionResponse {
	return &SessionResponse{
		AccessToken:  s.Session.AccessToken,
		RefreshToken: s.Session.RefreshToken,
		ExpiresAt:    s.Session.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
