package fallback

import (
	"sync"
	"time"
)

// Controller holds the single process-wide flag that marks the system as
// operating in degraded mode. It carries no side effects beyond the flag and
// its activation timestamp; callers log the transitions themselves.
//
// The reconciliation engine is the only component that deactivates the flag.
type Controller struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	clock       Clock
}

type ControllerOption func(*Controller)

func WithControllerClock(c Clock) ControllerOption {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clock = c
		}
	}
}

func NewController(opts ...ControllerOption) *Controller {
	ctl := &Controller{clock: time.Now}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// Activate flips the flag on. Idempotent: a second call leaves the original
// activation time untouched.
func (c *Controller) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.active = true
	c.activatedAt = c.clock().UTC()
}

func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.activatedAt = time.Time{}
}

func (c *Controller) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// ActivatedAt returns the activation time; the zero time when inactive.
func (c *Controller) ActivatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activatedAt
}
