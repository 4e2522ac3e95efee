package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashboard-api/internal/application/fallback/metrics"
	"github.com/dashboard-api/internal/domain"
	"github.com/dashboard-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type IssueCodeRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required"`
}

type VerifyCodeRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// Status is the subsystem health snapshot exposed to administrators.
type Status struct {
	DBAvailable    bool `json:"db_available"`
	FallbackActive bool `json:"fallback_active"`
	CanSync        bool `json:"can_sync"`
}

// RegisterResult reports where a registration landed. Exactly one of User and
// Pending is set.
type RegisterResult struct {
	User    *domain.User        `json:"user,omitempty"`
	Pending *domain.PendingUser `json:"pending_user,omitempty"`
	// Fallback is true when the registration was buffered in memory.
	Fallback bool `json:"fallback"`
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*RegisterResult, error)
	IssueCode(ctx context.Context, email, purpose string) (string, error)
	VerifyCode(ctx context.Context, email, purpose, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ListPendingUsers(ctx context.Context) []domain.PendingUser
	TriggerSync(ctx context.Context) (*domain.ReconciliationResult, error)
	IsFallbackActive() bool
	CheckStatus(ctx context.Context) Status
}

// userStore is the slice of the primary store's API the boundary service needs.
type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateVerificationFlags(ctx context.Context, email string, emailVerified, adminConfirmed bool) error
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	mode      *Controller
	pending   *PendingStore
	codes     *CodeService
	probe     *Probe
	engine    *Engine
	users     userStore
	mailer    mailer
	sms       smsSender
	metrics   *metrics.Metrics
	opTimeout time.Duration
	clock     Clock

	adminEmail string
	adminPhone string
}

type ServiceDeps struct {
	Mode    *Controller
	Pending *PendingStore
	Codes   *CodeService
	Probe   *Probe
	Engine  *Engine
	Users   userStore
	Mailer  mailer
	SMS     smsSender // optional
	Metrics *metrics.Metrics

	// OpTimeout bounds each direct primary-store write on the request path.
	OpTimeout time.Duration
	Clock     Clock // optional, defaults to time.Now

	AdminEmail string
	AdminPhone string
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		mode:       deps.Mode,
		pending:    deps.Pending,
		codes:      deps.Codes,
		probe:      deps.Probe,
		engine:     deps.Engine,
		users:      deps.Users,
		mailer:     deps.Mailer,
		sms:        deps.SMS,
		metrics:    deps.Metrics,
		opTimeout:  deps.OpTimeout,
		clock:      deps.Clock,
		adminEmail: deps.AdminEmail,
		adminPhone: deps.AdminPhone,
	}
	if s.opTimeout <= 0 {
		s.opTimeout = 5 * time.Second
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Register routes a registration to the primary store when it is reachable,
// or buffers it as a pending user after flipping fallback mode on. A store
// failure mid-request is the outage signal that first activates the flag.
func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*RegisterResult, error) {
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q: %w", role, domain.ErrBadRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	email := NormalizeEmail(req.Email)

	if s.mode.IsActive() {
		return s.registerFallback(email, string(hash), req.DisplayName, role)
	}
	if !s.probe.Check(ctx) {
		s.activateFallback("probe failed during registration")
		return s.registerFallback(email, string(hash), req.DisplayName, role)
	}

	now := s.clock().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.users.Create(cctx, u); err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		// The probe passed but the write failed: treat it as the outage.
		s.activateFallback("primary store write failed during registration")
		return s.registerFallback(email, string(hash), req.DisplayName, role)
	}
	s.metrics.IncRegistration("primary")
	return &RegisterResult{User: u}, nil
}

func (s *service) registerFallback(email, passwordHash, displayName, role string) (*RegisterResult, error) {
	p, err := s.pending.Add(email, passwordHash, displayName, role)
	if err != nil {
		return nil, err
	}
	s.metrics.IncRegistration("fallback")
	slog.Info("registration buffered in fallback mode", "email", p.Email, "role", p.Role)
	return &RegisterResult{Pending: p, Fallback: true}, nil
}

func (s *service) activateFallback(reason string) {
	s.mode.Activate()
	s.metrics.SetFallbackActive(true)
	slog.Warn("fallback mode activated", "reason", reason, "activated_at", s.mode.ActivatedAt())
}

// IssueCode generates a code for the given purpose and delivers it through
// the configured channel. Delivery is best-effort: a channel failure is
// logged, not returned, since the code remains valid and re-requestable.
func (s *service) IssueCode(ctx context.Context, email, purpose string) (string, error) {
	email = NormalizeEmail(email)
	code, err := s.codes.Issue(email, purpose)
	if err != nil {
		return "", err
	}
	s.metrics.IncCodeIssued(purpose)
	s.deliver(ctx, email, purpose, code)
	return code, nil
}

func (s *service) deliver(ctx context.Context, email, purpose, code string) {
	switch purpose {
	case domain.PurposeAdminConfirmation:
		// Confirmation codes go to the operations contact, not the registrant.
		msg := fmt.Sprintf("Confirmation code for %s: %s", email, code)
		if s.adminPhone != "" && s.sms != nil {
			err := s.sms.SendSMS(ctx, s.adminPhone, msg)
			if err == nil {
				return
			}
			slog.Warn("sms delivery failed, falling back to email", "err", err)
		}
		if err := s.mailer.SendEmail(s.adminEmail, "Admin confirmation code", msg); err != nil {
			slog.Warn("code delivery failed", "purpose", purpose, "err", err)
		}
	case domain.PurposePasswordReset:
		if err := s.mailer.SendEmail(email, "Password reset code", "Your code: "+code); err != nil {
			slog.Warn("code delivery failed", "purpose", purpose, "err", err)
		}
	default:
		if err := s.mailer.SendEmail(email, "Verify your email", "Your verification code: "+code); err != nil {
			slog.Warn("code delivery failed", "purpose", purpose, "err", err)
		}
	}
}

// VerifyCode consumes the active code for (email, purpose) and applies the
// resulting flag: on the pending user when one exists, otherwise on the
// primary-store record.
func (s *service) VerifyCode(ctx context.Context, email, purpose, code string) error {
	email = NormalizeEmail(email)
	if err := s.codes.Verify(email, purpose, code); err != nil {
		s.metrics.IncCodeVerification(purpose, verifyOutcome(err))
		return err
	}
	s.metrics.IncCodeVerification(purpose, "ok")

	switch purpose {
	case domain.PurposeEmailVerification:
		return s.applyFlag(ctx, email, func(u *domain.User) (bool, bool) {
			return true, u.AdminConfirmed
		}, s.pending.MarkEmailVerified)
	case domain.PurposeAdminConfirmation:
		return s.applyFlag(ctx, email, func(u *domain.User) (bool, bool) {
			return u.EmailVerified, true
		}, s.pending.MarkAdminConfirmed)
	}
	// password_reset codes carry no flag; consumption alone proves control.
	return nil
}

// applyFlag marks the pending user when present; otherwise it updates the
// primary record, which requires the store to be reachable.
func (s *service) applyFlag(ctx context.Context, email string, flags func(*domain.User) (bool, bool), markPending func(string) error) error {
	if _, err := s.pending.Get(email); err == nil {
		return markPending(email)
	}
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	u, err := s.users.GetByEmail(cctx, email)
	if err != nil {
		return err
	}
	emailVerified, adminConfirmed := flags(u)
	uctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.users.UpdateVerificationFlags(uctx, email, emailVerified, adminConfirmed)
}

// ResetPassword verifies a password_reset code and replaces the password
// hash on whichever record holds the user.
func (s *service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	if err := s.codes.Verify(email, domain.PurposePasswordReset, code); err != nil {
		s.metrics.IncCodeVerification(domain.PurposePasswordReset, verifyOutcome(err))
		return err
	}
	s.metrics.IncCodeVerification(domain.PurposePasswordReset, "ok")

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := s.pending.Get(email); err == nil {
		return s.pending.UpdatePasswordHash(email, string(hash))
	}
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.users.UpdatePasswordHash(cctx, email, string(hash))
}

func (s *service) ListPendingUsers(_ context.Context) []domain.PendingUser {
	return s.pending.List()
}

func (s *service) TriggerSync(ctx context.Context) (*domain.ReconciliationResult, error) {
	result, err := s.engine.Sync(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSyncOutcomes("synced", len(result.Synced))
	s.metrics.AddSyncOutcomes("skipped", len(result.Skipped))
	s.metrics.AddSyncOutcomes("error", len(result.Errors))
	s.metrics.SetFallbackActive(s.mode.IsActive())
	return result, nil
}

func (s *service) IsFallbackActive() bool {
	return s.mode.IsActive()
}

func (s *service) CheckStatus(ctx context.Context) Status {
	db := s.probe.Check(ctx)
	active := s.mode.IsActive()
	return Status{
		DBAvailable:    db,
		FallbackActive: active,
		CanSync:        db && active,
	}
}

// isDomainErr distinguishes business-rule rejections from infrastructure
// failures; only the latter flip fallback mode.
func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrDuplicateEmail) ||
		errors.Is(err, domain.ErrBadRequest) ||
		errors.Is(err, domain.ErrNotFound)
}

func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid"
	default:
		return "error"
	}
}
