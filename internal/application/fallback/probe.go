package fallback

import (
	"context"
	"time"
)

// Pinger is the trivial connectivity query offered by the primary store.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	defaultProbeTimeout = 3 * time.Second
	maxProbeTimeout     = 10 * time.Second
)

// Probe runs a bounded-timeout health check against the primary store.
// Check never returns an error: any failure, including a timeout, reads as
// "unreachable".
type Probe struct {
	pinger  Pinger
	timeout time.Duration
}

func NewProbe(pinger Pinger, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if timeout > maxProbeTimeout {
		timeout = maxProbeTimeout
	}
	return &Probe{pinger: pinger, timeout: timeout}
}

func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.pinger.Ping(ctx) == nil
}
