package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dashboard-api/internal/application/fallback/metrics"
	"github.com/dashboard-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) UpdateVerificationFlags(ctx context.Context, email string, emailVerified, adminConfirmed bool) error {
	return m.Called(ctx, email, emailVerified, adminConfirmed).Error(0)
}

func (m *mockUserStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	return m.Called(ctx, email, passwordHash).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

type serviceFixture struct {
	svc     Service
	mode    *Controller
	pending *PendingStore
	codes   *CodeService
	users   *mockUserStore
	mailer  *mockMailer
	sms     *mockSMSSender
	pinger  *stubPinger
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		mode:    NewController(),
		pending: NewPendingStore(),
		codes:   NewCodeService(),
		users:   &mockUserStore{},
		mailer:  &mockMailer{},
		sms:     &mockSMSSender{},
		pinger:  &stubPinger{},
	}
	probe := NewProbe(f.pinger, time.Second)
	engine := NewEngine(f.mode, f.pending, probe, f.users, time.Second)
	f.svc = NewService(ServiceDeps{
		Mode:       f.mode,
		Pending:    f.pending,
		Codes:      f.codes,
		Probe:      probe,
		Engine:     engine,
		Users:      f.users,
		Mailer:     f.mailer,
		SMS:        f.sms,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		OpTimeout:  time.Second,
		AdminEmail: "ops@dashboard.io",
		AdminPhone: "+15550001111",
	})
	return f
}

func registerReq(email string) domain.CreateUserRequest {
	return domain.CreateUserRequest{
		Email:       email,
		Password:    "password123",
		DisplayName: "Test User",
	}
}

// --- Register ---

func TestRegister_PrimaryPath(t *testing.T) {
	f := newServiceFixture(t)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "bob@example.com" && u.UserID != "" && u.Role == domain.RoleUser
	})).Return(nil)

	res, err := f.svc.Register(context.Background(), registerReq("Bob@Example.com"))

	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.False(t, res.Fallback)
	assert.Nil(t, res.Pending)
	assert.Equal(t, "bob@example.com", res.User.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("password123")))
	assert.False(t, f.mode.IsActive())
	assert.Equal(t, 0, f.pending.Len())
	f.users.AssertExpectations(t)
}

func TestRegister_BuffersWhenFallbackActive(t *testing.T) {
	f := newServiceFixture(t)
	f.mode.Activate()

	res, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))

	require.NoError(t, err)
	require.NotNil(t, res.Pending)
	assert.True(t, res.Fallback)
	assert.Nil(t, res.User)
	assert.Equal(t, 1, f.pending.Len())
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_ProbeFailureActivatesFallback(t *testing.T) {
	f := newServiceFixture(t)
	f.pinger.err = errors.New("no route to host")

	res, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))

	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.True(t, f.mode.IsActive())
	assert.Equal(t, 1, f.pending.Len())
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_WriteFailureActivatesFallback(t *testing.T) {
	f := newServiceFixture(t)
	f.users.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	res, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))

	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.True(t, f.mode.IsActive())
	assert.Equal(t, 1, f.pending.Len())
}

func TestRegister_DuplicateEmailDoesNotActivateFallback(t *testing.T) {
	f := newServiceFixture(t)
	f.users.On("Create", mock.Anything, mock.Anything).Return(domain.ErrDuplicateEmail)

	_, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateEmail))
	assert.False(t, f.mode.IsActive())
	assert.Equal(t, 0, f.pending.Len())
}

func TestRegister_DuplicateInPendingBuffer(t *testing.T) {
	f := newServiceFixture(t)
	f.mode.Activate()

	_, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), registerReq("BOB@example.com"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateEmail))
	assert.Equal(t, 1, f.pending.Len())
}

func TestRegister_InvalidRole(t *testing.T) {
	f := newServiceFixture(t)
	req := registerReq("bob@example.com")
	req.Role = "superadmin"

	_, err := f.svc.Register(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- IssueCode ---

func TestIssueCode_EmailVerificationGoesToRegistrant(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.On("SendEmail", "bob@example.com", mock.Anything, mock.Anything).Return(nil)

	code, err := f.svc.IssueCode(context.Background(), "Bob@Example.com", domain.PurposeEmailVerification)

	require.NoError(t, err)
	assert.Len(t, code, 6)
	f.mailer.AssertExpectations(t)
	f.sms.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueCode_AdminConfirmationGoesToAdminPhone(t *testing.T) {
	f := newServiceFixture(t)
	f.sms.On("SendSMS", mock.Anything, "+15550001111", mock.Anything).Return(nil)

	_, err := f.svc.IssueCode(context.Background(), "bob@example.com", domain.PurposeAdminConfirmation)

	require.NoError(t, err)
	f.sms.AssertExpectations(t)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueCode_SMSFailureFallsBackToAdminEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.sms.On("SendSMS", mock.Anything, "+15550001111", mock.Anything).Return(errors.New("throttled"))
	f.mailer.On("SendEmail", "ops@dashboard.io", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.IssueCode(context.Background(), "bob@example.com", domain.PurposeAdminConfirmation)

	require.NoError(t, err)
	f.mailer.AssertExpectations(t)
}

func TestIssueCode_DeliveryFailureDoesNotInvalidateCode(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	code, err := f.svc.IssueCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification)

	require.NoError(t, err)
	// The code is still active despite the delivery error.
	assert.NoError(t, f.codes.Verify("bob@example.com", domain.PurposeEmailVerification, code))
}

func TestIssueCode_UnknownPurpose(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.IssueCode(context.Background(), "bob@example.com", "magic_link")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- VerifyCode ---

func TestVerifyCode_MarksPendingUser(t *testing.T) {
	f := newServiceFixture(t)
	f.mode.Activate()
	_, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))
	require.NoError(t, err)

	code, err := f.codes.Issue("bob@example.com", domain.PurposeEmailVerification)
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification, code))

	p, err := f.pending.Get("bob@example.com")
	require.NoError(t, err)
	assert.True(t, p.EmailVerified)
	assert.False(t, p.AdminConfirmed)
	f.users.AssertNotCalled(t, "UpdateVerificationFlags", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_UpdatesPrimaryRecordPreservingOtherFlag(t *testing.T) {
	f := newServiceFixture(t)
	f.users.On("GetByEmail", mock.Anything, "bob@example.com").
		Return(&domain.User{Email: "bob@example.com", AdminConfirmed: true}, nil)
	f.users.On("UpdateVerificationFlags", mock.Anything, "bob@example.com", true, true).Return(nil)

	code, err := f.codes.Issue("bob@example.com", domain.PurposeEmailVerification)
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification, code))
	f.users.AssertExpectations(t)
}

func TestVerifyCode_WrongCode(t *testing.T) {
	f := newServiceFixture(t)
	code, err := f.codes.Issue("bob@example.com", domain.PurposeEmailVerification)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err = f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification, wrong)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
}

func TestVerifyCode_PasswordResetHasNoFlagSideEffect(t *testing.T) {
	f := newServiceFixture(t)
	code, err := f.codes.Issue("bob@example.com", domain.PurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposePasswordReset, code))
	f.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

// --- ResetPassword ---

func TestResetPassword_PendingUser(t *testing.T) {
	f := newServiceFixture(t)
	f.mode.Activate()
	_, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))
	require.NoError(t, err)
	before, err := f.pending.Get("bob@example.com")
	require.NoError(t, err)

	code, err := f.codes.Issue("bob@example.com", domain.PurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(context.Background(), "bob@example.com", code, "newpassword1"))

	after, err := f.pending.Get("bob@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(after.PasswordHash), []byte("newpassword1")))
	f.users.AssertNotCalled(t, "UpdatePasswordHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_PrimaryUser(t *testing.T) {
	f := newServiceFixture(t)
	f.users.On("UpdatePasswordHash", mock.Anything, "bob@example.com", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("newpassword1")) == nil
	})).Return(nil)

	code, err := f.codes.Issue("bob@example.com", domain.PurposePasswordReset)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(context.Background(), "bob@example.com", code, "newpassword1"))
	f.users.AssertExpectations(t)
}

func TestResetPassword_InvalidCode(t *testing.T) {
	f := newServiceFixture(t)
	err := f.svc.ResetPassword(context.Background(), "bob@example.com", "123456", "newpassword1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- Status ---

func TestCheckStatus(t *testing.T) {
	f := newServiceFixture(t)

	st := f.svc.CheckStatus(context.Background())
	assert.True(t, st.DBAvailable)
	assert.False(t, st.FallbackActive)
	assert.False(t, st.CanSync)

	f.mode.Activate()
	st = f.svc.CheckStatus(context.Background())
	assert.True(t, st.CanSync)

	f.pinger.err = errors.New("down")
	st = f.svc.CheckStatus(context.Background())
	assert.False(t, st.DBAvailable)
	assert.False(t, st.CanSync)
	assert.True(t, st.FallbackActive)
}

// --- full degraded-mode lifecycle ---

func TestFallbackLifecycle_RegisterVerifyConfirmSync(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.sms.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Store goes down; the first registration flips fallback mode.
	f.pinger.err = errors.New("connection refused")
	res, err := f.svc.Register(context.Background(), registerReq("bob@example.com"))
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.True(t, f.svc.IsFallbackActive())

	// Bob proves control of the mailbox.
	code, err := f.svc.IssueCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposeEmailVerification, code))

	// An operator confirms the account.
	code, err = f.svc.IssueCode(context.Background(), "bob@example.com", domain.PurposeAdminConfirmation)
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyCode(context.Background(), "bob@example.com", domain.PurposeAdminConfirmation, code))

	users := f.svc.ListPendingUsers(context.Background())
	require.Len(t, users, 1)
	assert.True(t, users[0].Eligible())

	// Store comes back; reconciliation drains the buffer.
	f.pinger.err = nil
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "bob@example.com"
	})).Return(nil)
	f.users.On("UpdateVerificationFlags", mock.Anything, "bob@example.com", true, true).Return(nil)

	result, err := f.svc.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com"}, result.Synced)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Errors)

	assert.False(t, f.svc.IsFallbackActive())
	assert.Empty(t, f.svc.ListPendingUsers(context.Background()))
	f.users.AssertExpectations(t)
}

func TestTriggerSync_UnreachableStore(t *testing.T) {
	f := newServiceFixture(t)
	f.mode.Activate()
	_, err := f.pending.Add("bob@example.com", "h", "Bob", domain.RoleUser)
	require.NoError(t, err)
	f.pinger.err = errors.New("still down")

	_, err = f.svc.TriggerSync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))
	assert.Equal(t, 1, f.pending.Len())
	assert.True(t, f.svc.IsFallbackActive())
}
