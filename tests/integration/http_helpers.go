package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mereside/opsgate/internal/auth"
	"github.com/mereside/opsgate/internal/config"
	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/handlers"
	"github.com/mereside/opsgate/internal/identity"
	"github.com/mereside/opsgate/internal/loginflow"
	middlewareCustom "github.com/mereside/opsgate/internal/middleware"
	"github.com/mereside/opsgate/internal/otp"
	"github.com/mereside/opsgate/internal/routes"
	"github.com/mereside/opsgate/internal/trust"
	pkghttp "github.com/mereside/opsgate/pkg/http"
	pkglogger "github.com/mereside/opsgate/pkg/logger"
)

// SentPasscode represents a captured one-time code delivery
type SentPasscode struct {
	To   string
	Code string
}

// MockEmailSender captures passcode emails for test assertions
type MockEmailSender struct {
	mu   sync.Mutex
	Sent []SentPasscode
}

func (m *MockEmailSender) SendPasscodeEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentPasscode{To: email, Code: code})
	return nil
}

// LastCode returns the most recent code delivered, or ""
func (m *MockEmailSender) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1].Code
}

// MockSMSSender captures passcode texts for test assertions
type MockSMSSender struct {
	mu   sync.Mutex
	Sent []SentPasscode
}

func (m *MockSMSSender) SendPasscodeSMS(ctx context.Context, phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentPasscode{To: phone, Code: code})
	return nil
}

func (m *MockSMSSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// FakeIdentityServer imitates the upstream identity provider's password
// grant and logout endpoints.
type FakeIdentityServer struct {
	Server *httptest.Server

	mu          sync.Mutex
	credentials map[string]string // email -> password
	SignInCount int
	LogoutCount int
}

// NewFakeIdentityServer starts a provider accepting the given credentials
func NewFakeIdentityServer(credentials map[string]string) *FakeIdentityServer {
	f := &FakeIdentityServer{credentials: credentials}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("POST /logout", f.handleLogout)
	f.Server = httptest.NewServer(mux)

	return f
}

func (f *FakeIdentityServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	password, ok := f.credentials[body.Email]
	f.SignInCount++
	f.mu.Unlock()

	if !ok || password != body.Password {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-" + body.Email,
		"refresh_token": "refresh-" + body.Email,
		"expires_in":    3600,
		"user": map[string]string{
			"id":    "user-" + body.Email,
			"email": body.Email,
		},
	})
}

func (f *FakeIdentityServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.LogoutCount++
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeIdentityServer) Close() {
	f.Server.Close()
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Identity     *FakeIdentityServer
	EmailSender  *MockEmailSender
	SMSSender    *MockSMSSender
	AttemptStore *loginflow.Store

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with a real database,
// a fake identity provider and captured passcode delivery.
func NewTestServer(db *database.DB, credentials map[string]string) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fakeIdentity := NewFakeIdentityServer(credentials)

	identityCfg := config.Identity{
		BaseURL: fakeIdentity.Server.URL,
		APIKey:  "test-api-key",
		Timeout: 5 * time.Second,
	}

	deviceRepo, challengeRepo, directoryRepo := InitializeRepositories(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// No artificial delay in tests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	trustService := trust.NewService(deviceRepo, 30*24*time.Hour, logger, auditLogger)

	emailSender := &MockEmailSender{}
	smsSender := &MockSMSSender{}
	otpService := otp.NewService(challengeRepo, directoryRepo, emailSender, smsSender, 5*time.Minute, logger, auditLogger)

	attemptStore := loginflow.NewStore(1*time.Minute, logger)
	machineConfig := loginflow.MachineConfig{
		ResendCooldown: 60 * time.Second,
		AttemptTTL:     5 * time.Minute,
	}
	newMachine := func(fingerprint string) *loginflow.Machine {
		provider := identity.NewHTTPProvider(identityCfg, logger)
		verifier := identity.NewVerifier(provider, timingDelay, logger)
		sessionGuard := identity.NewSessionGuard(provider, logger)
		return loginflow.NewMachine(fingerprint, verifier, sessionGuard, trustService, otpService, machineConfig, logger, auditLogger)
	}

	tokenManager := auth.NewChallengeTokenManager("integration-test-secret-32-chars!", 5*time.Minute)

	ipConfig := &pkghttp.IPConfig{}
	flowHandler := handlers.NewLoginFlowHandler(attemptStore, newMachine, tokenManager, ipConfig, auditLogger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, flowHandler, db)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Identity:     fakeIdentity,
		EmailSender:  emailSender,
		SMSSender:    smsSender,
		AttemptStore: attemptStore,
		logger:       logger,
	}
}

// Close shuts down the test server and the fake identity provider
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Identity != nil {
		ts.Identity.Close()
	}
	if ts.AttemptStore != nil {
		ts.AttemptStore.Stop()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
