package fallback

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dashboard-api/internal/domain"
)

// The attempt cap and TTL bound the guess probability over the 6-digit space.
const (
	codeSpace   = 1_000_000
	codeTTL     = 10 * time.Minute
	maxAttempts = 5
)

type codeKey struct {
	email   string
	purpose string
}

// CodeService issues and verifies short-lived numeric codes for email
// verification, administrator confirmation, and password reset. It holds all
// state in memory and never touches the primary store.
type CodeService struct {
	mu    sync.Mutex
	codes map[codeKey]*domain.OneTimeCode
	clock Clock
}

type CodeOption func(*CodeService)

func WithCodeClock(c Clock) CodeOption {
	return func(s *CodeService) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewCodeService(opts ...CodeOption) *CodeService {
	s := &CodeService{
		codes: make(map[codeKey]*domain.OneTimeCode),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a fresh zero-padded 6-digit code valid for ten minutes.
// Any prior code for the same (email, purpose) pair is superseded and its
// attempt count reset. The code is returned to the caller, which owns
// delivery.
func (s *CodeService) Issue(email, purpose string) (string, error) {
	if !domain.ValidPurpose(purpose) {
		return "", fmt.Errorf("purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	key := codeKey{email: NormalizeEmail(email), purpose: purpose}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[key] = &domain.OneTimeCode{
		Email:     key.email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: s.clock().Add(codeTTL),
	}
	return code, nil
}

// Verify checks the submitted code against the active record for
// (email, purpose). Outcomes:
//   - no active record: ErrNotFound
//   - record past its deadline: ErrExpired (record discarded)
//   - mismatch: ErrInvalidCode; the 5th wrong attempt exhausts the record
//     and that call, plus every later one until a fresh Issue supersedes
//     the record, fails with ErrTooManyAttempts even for the correct code
//   - match: the record is consumed; a replay fails with ErrNotFound
func (s *CodeService) Verify(email, purpose, code string) error {
	key := codeKey{email: NormalizeEmail(email), purpose: purpose}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[key]
	if !ok {
		return fmt.Errorf("code for %s/%s: %w", key.email, purpose, domain.ErrNotFound)
	}
	if !s.clock().Before(rec.ExpiresAt) {
		delete(s.codes, key)
		return fmt.Errorf("code for %s/%s: %w", key.email, purpose, domain.ErrExpired)
	}
	if rec.AttemptCount >= maxAttempts {
		return fmt.Errorf("code for %s/%s: %w", key.email, purpose, domain.ErrTooManyAttempts)
	}
	if rec.Code != code {
		rec.AttemptCount++
		if rec.AttemptCount >= maxAttempts {
			return fmt.Errorf("code for %s/%s: %w", key.email, purpose, domain.ErrTooManyAttempts)
		}
		return fmt.Errorf("code for %s/%s: %w", key.email, purpose, domain.ErrInvalidCode)
	}
	rec.Consumed = true
	delete(s.codes, key)
	return nil
}
