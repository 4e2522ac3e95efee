package fallback

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dashboard-api/internal/domain"
)

// NormalizeEmail lowercases and trims an email address. All pending-user and
// code lookups key on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type pendingEntry struct {
	user domain.PendingUser
	seq  uint64 // insertion order, breaks CreatedAt ties under a frozen clock
}

// PendingStore is the in-memory registry of registrations accepted while the
// primary store was unreachable. Entries live until the reconciliation engine
// clears them; a process restart discards everything.
type PendingStore struct {
	mu      sync.RWMutex
	entries map[string]*pendingEntry
	nextSeq uint64
	clock   Clock
}

type PendingOption func(*PendingStore)

func WithPendingClock(c Clock) PendingOption {
	return func(s *PendingStore) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewPendingStore(opts ...PendingOption) *PendingStore {
	s := &PendingStore{
		entries: make(map[string]*pendingEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts a new pending user keyed by normalized email. The insert is
// all-or-nothing: it either fully succeeds or fails with ErrDuplicateEmail.
func (s *PendingStore) Add(email, passwordHash, displayName, role string) (*domain.PendingUser, error) {
	norm := NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[norm]; exists {
		return nil, fmt.Errorf("pending user %s: %w", norm, domain.ErrDuplicateEmail)
	}
	s.nextSeq++
	e := &pendingEntry{
		user: domain.PendingUser{
			Email:        norm,
			PasswordHash: passwordHash,
			DisplayName:  displayName,
			Role:         role,
			CreatedAt:    s.clock().UTC(),
		},
		seq: s.nextSeq,
	}
	s.entries[norm] = e
	u := e.user
	return &u, nil
}

// Get returns a copy of the pending user, or ErrNotFound.
func (s *PendingStore) Get(email string) (*domain.PendingUser, error) {
	norm := NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[norm]
	if !ok {
		return nil, fmt.Errorf("pending user %s: %w", norm, domain.ErrNotFound)
	}
	u := e.user
	return &u, nil
}

// List returns a copy-on-read snapshot ordered by creation time. The entries
// are copied under the read lock; mutations after the snapshot is taken do
// not affect the returned slice.
func (s *PendingStore) List() []domain.PendingUser {
	s.mu.RLock()
	snapshot := make([]pendingEntry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, *e)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].user.CreatedAt.Equal(snapshot[j].user.CreatedAt) {
			return snapshot[i].seq < snapshot[j].seq
		}
		return snapshot[i].user.CreatedAt.Before(snapshot[j].user.CreatedAt)
	})
	users := make([]domain.PendingUser, len(snapshot))
	for i := range snapshot {
		users[i] = snapshot[i].user
	}
	return users
}

func (s *PendingStore) MarkEmailVerified(email string) error {
	return s.mutate(email, func(u *domain.PendingUser) { u.EmailVerified = true })
}

func (s *PendingStore) MarkAdminConfirmed(email string) error {
	return s.mutate(email, func(u *domain.PendingUser) { u.AdminConfirmed = true })
}

// UpdatePasswordHash replaces the buffered password hash, used by the
// password-reset-in-fallback flow.
func (s *PendingStore) UpdatePasswordHash(email, passwordHash string) error {
	return s.mutate(email, func(u *domain.PendingUser) { u.PasswordHash = passwordHash })
}

func (s *PendingStore) mutate(email string, fn func(*domain.PendingUser)) error {
	norm := NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[norm]
	if !ok {
		return fmt.Errorf("pending user %s: %w", norm, domain.ErrNotFound)
	}
	fn(&e.user)
	return nil
}

// Clear removes all entries unconditionally. Called only by the
// reconciliation engine after a sync run.
func (s *PendingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*pendingEntry)
}

func (s *PendingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
