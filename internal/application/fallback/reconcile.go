package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashboard-api/internal/domain"
	"github.com/dashboard-api/internal/pkg/id"
)

// primaryStore is the slice of the primary store's API the engine needs.
type primaryStore interface {
	Create(ctx context.Context, u *domain.User) error
	UpdateVerificationFlags(ctx context.Context, email string, emailVerified, adminConfirmed bool) error
}

// Engine drains the pending-user buffer into the primary store once it is
// reachable again. A run classifies every snapshot entry as synced, skipped,
// or errored; one record's failure never aborts the batch.
type Engine struct {
	mode      *Controller
	pending   *PendingStore
	probe     *Probe
	users     primaryStore
	opTimeout time.Duration
	clock     Clock
}

type EngineOption func(*Engine)

func WithEngineClock(c Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func NewEngine(mode *Controller, pending *PendingStore, probe *Probe, users primaryStore, opTimeout time.Duration, opts ...EngineOption) *Engine {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	e := &Engine{
		mode:      mode,
		pending:   pending,
		probe:     probe,
		users:     users,
		opTimeout: opTimeout,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync replays the buffered registrations. Behavior, in order:
//
//  1. No-op when fallback mode is off.
//  2. An empty snapshot returns an empty result and leaves fallback mode
//     active; only a run that processed entries may deactivate it.
//  3. An unreachable store fails the whole call with ErrServiceUnavailable
//     before any state is mutated.
//  4. Entries missing either verification flag are skipped. Eligible entries
//     are created in the primary store and their flags applied; a per-record
//     failure lands in the errors list and the loop continues.
//  5. The buffer is cleared and fallback mode deactivated regardless of the
//     per-record classifications.
//
// Entries added after the snapshot is taken survive for a future run.
func (e *Engine) Sync(ctx context.Context) (*domain.ReconciliationResult, error) {
	result := domain.NewReconciliationResult()

	if !e.mode.IsActive() {
		return result, nil
	}

	snapshot := e.pending.List()
	if len(snapshot) == 0 {
		return result, nil
	}

	if !e.probe.Check(ctx) {
		return nil, fmt.Errorf("primary store unreachable: %w", domain.ErrServiceUnavailable)
	}

	for i := range snapshot {
		p := &snapshot[i]
		if !p.Eligible() {
			slog.Info("sync: skipping unverified pending user",
				"email", p.Email, "email_verified", p.EmailVerified, "admin_confirmed", p.AdminConfirmed)
			result.Skipped = append(result.Skipped, p.Email)
			continue
		}
		if err := e.createUser(ctx, p); err != nil {
			slog.Warn("sync: pending user failed to reconcile", "email", p.Email, "err", err)
			result.Errors = append(result.Errors, domain.SyncError{Email: p.Email, Error: err.Error()})
			continue
		}
		result.Synced = append(result.Synced, p.Email)
	}

	e.pending.Clear()
	e.mode.Deactivate()
	slog.Info("sync: fallback mode deactivated",
		"synced", len(result.Synced), "skipped", len(result.Skipped), "errors", len(result.Errors))
	return result, nil
}

func (e *Engine) createUser(ctx context.Context, p *domain.PendingUser) error {
	now := e.clock().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		DisplayName:  p.DisplayName,
		Role:         p.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	if err := e.users.Create(cctx, u); err != nil {
		return err
	}

	uctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.users.UpdateVerificationFlags(uctx, p.Email, p.EmailVerified, p.AdminConfirmed)
}
