package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mereside/opsgate/internal/config"
	"github.com/mereside/opsgate/internal/models"
)

// HTTPProvider implements Provider against a GoTrue-style identity API.
// It caches the session established by the last successful sign-in and
// fans state changes out to subscribers on a separate goroutine, which
// is the behavior the SessionGuard exists to tame.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	session     *Session
	subscribers map[int]func(AuthEvent, *Session)
	nextSubID   int
}

// NewHTTPProvider creates a provider client for one session scope.
func NewHTTPProvider(cfg config.Identity, logger *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
		subscribers: make(map[int]func(AuthEvent, *Session)),
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// SignInWithPassword exchanges credentials for a session. Invalid
// credentials map to models.ErrInvalidCredentials; everything else is a
// wrapped transport/service error.
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sign-in request: %w", err)
	}
	p.setHeaders(req, "")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, models.ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("%w: sign-in returned status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	var sr signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: failed to decode sign-in response: %w", models.ErrProviderUnavailable, err)
	}

	session := &Session{
		AccessToken:  sr.AccessToken,
		RefreshToken: sr.RefreshToken,
		UserID:       sr.User.ID,
		Email:        sr.User.Email,
		ExpiresAt:    time.Now().Add(time.Duration(sr.ExpiresIn) * time.Second),
	}

	p.setSession(session)
	p.notify(EventSignedIn, session)

	return session, nil
}

// SignOut drops the current session at the provider. Idempotent: no
// session, or a session the provider no longer recognizes, is not an
// error.
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	if session == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to build sign-out request: %w", err)
	}
	p.setHeaders(req, session.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 401 means the session was already gone upstream; treat as signed out.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("%w: sign-out returned status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	p.setSession(nil)
	p.notify(EventSignedOut, nil)

	return nil
}

// GetSession returns the cached session, or nil when there is none or
// it has expired.
func (p *HTTPProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil || p.session.IsExpired(time.Now()) {
		return nil, nil
	}
	return p.session, nil
}

// OnAuthStateChange registers a handler for session transitions. The
// returned function removes the subscription; calling it more than once
// is harmless.
func (p *HTTPProvider) OnAuthStateChange(handler func(event AuthEvent, session *Session)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = handler
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

func (p *HTTPProvider) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func (p *HTTPProvider) setSession(s *Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

// notify delivers the event to all subscribers asynchronously, matching
// the push semantics of the upstream SDK.
func (p *HTTPProvider) notify(event AuthEvent, session *Session) {
	p.mu.Lock()
	handlers := make([]func(AuthEvent, *Session), 0, len(p.subscribers))
	for _, h := range p.subscribers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		go h(event, session)
	}
}
