package identity

import (
	"context"
	"sync"

	"github.com/mereside/opsgate/internal/models"
)

// MockProvider implements Provider for testing
type MockProvider struct {
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*Session, error)
	SignOutFunc            func(ctx context.Context) error
	GetSessionFunc         func(ctx context.Context) (*Session, error)

	mu       sync.Mutex
	handlers []func(AuthEvent, *Session)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

func (m *MockProvider) GetSession(ctx context.Context) (*Session, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx)
	}
	return nil, nil
}

func (m *MockProvider) OnAuthStateChange(handler func(event AuthEvent, session *Session)) func() {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	idx := len(m.handlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.handlers[idx] = nil
		m.mu.Unlock()
	}
}

// Emit pushes an event synchronously to all live handlers, letting
// tests control exactly when notifications arrive.
func (m *MockProvider) Emit(event AuthEvent, session *Session) {
	m.mu.Lock()
	handlers := make([]func(AuthEvent, *Session), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(event, session)
		}
	}
}
