package loginflow

import (
	"sync"
	"time"
)

// Cooldown gates how soon a new code may be requested for an attempt.
// It is deadline-based: Remaining is derived from the clock rather than
// a ticking goroutine, so an abandoned attempt never leaves a timer
// running.
type Cooldown struct {
	mu          sync.Mutex
	now         func() time.Time
	availableAt time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{now: time.Now}
}

// Start arms the cooldown for the given duration, replacing any prior
// deadline.
func (c *Cooldown) Start(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.availableAt = c.now().Add(d)
}

// Remaining returns the whole seconds left before a resend is allowed,
// rounded up so a fresh 60s cooldown reports 60, not 59.
func (c *Cooldown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	left := c.availableAt.Sub(c.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// CanResend reports whether the cooldown has fully elapsed.
func (c *Cooldown) CanResend() bool {
	return c.Remaining() <= 0
}

// Cancel clears the deadline entirely, not just pauses it.
func (c *Cooldown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.availableAt = time.Time{}
}
