package loginflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mereside/opsgate/internal/models"
)

// Store holds in-flight login attempts keyed by attempt ID. Attempts
// are short-lived; the sweep loop closes any that outlive their TTL so
// an abandoned attempt cannot hold session suppression forever.
type Store struct {
	mu       sync.RWMutex
	attempts map[string]*Machine
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
}

func NewStore(sweepInterval time.Duration, logger *slog.Logger) *Store {
	return &Store{
		attempts: make(map[string]*Machine),
		interval: sweepInterval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Put registers a new attempt.
func (s *Store) Put(m *Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[m.ID()] = m
}

// Get returns a live attempt, treating an expired one as gone.
func (s *Store) Get(id string) (*Machine, error) {
	s.mu.RLock()
	m, ok := s.attempts[id]
	s.mu.RUnlock()

	if !ok {
		return nil, models.ErrAttemptNotFound
	}
	if m.Expired(time.Now()) {
		s.Remove(id)
		return nil, models.ErrAttemptNotFound
	}
	return m, nil
}

// Remove closes and drops an attempt. Unknown IDs are a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	m, ok := s.attempts[id]
	if ok {
		delete(s.attempts, id)
	}
	s.mu.Unlock()

	if ok {
		m.Close()
	}
}

// Len reports the number of live attempts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

// Start runs the periodic sweep until the context is canceled or Stop
// is called.
func (s *Store) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.logger.Info("login attempt sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("login attempt sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (s *Store) Stop() {
	close(s.stopCh)
}

func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	var expired []*Machine
	for id, m := range s.attempts {
		if m.Expired(now) {
			expired = append(expired, m)
			delete(s.attempts, id)
		}
	}
	s.mu.Unlock()

	for _, m := range expired {
		m.Close()
	}

	if len(expired) > 0 {
		s.logger.Info("swept expired login attempts",
			slog.Int("count", len(expired)))
	}
}
