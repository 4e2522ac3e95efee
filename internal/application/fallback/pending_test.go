package fallback

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dashboard-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingStore_AddAndGet(t *testing.T) {
	s := NewPendingStore()
	p, err := s.Add("Bob@Example.com", "hash", "Bob", domain.RoleUser)

	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", p.Email)
	assert.False(t, p.EmailVerified)
	assert.False(t, p.AdminConfirmed)

	got, err := s.Get("bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.DisplayName)
}

func TestPendingStore_DuplicateEmail_CaseInsensitive(t *testing.T) {
	s := NewPendingStore()
	_, err := s.Add("A@x.com", "h1", "A", domain.RoleUser)
	require.NoError(t, err)

	_, err = s.Add("a@x.com", "h2", "A2", domain.RoleUser)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateEmail))
}

func TestPendingStore_ListOrderedByCreation(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewPendingStore(WithPendingClock(func() time.Time { return current }))

	// Same frozen timestamp: insertion order must still hold.
	for i := 0; i < 5; i++ {
		_, err := s.Add(fmt.Sprintf("u%d@x.com", i), "h", "U", domain.RoleUser)
		require.NoError(t, err)
	}
	users := s.List()
	require.Len(t, users, 5)
	for i, u := range users {
		assert.Equal(t, fmt.Sprintf("u%d@x.com", i), u.Email)
	}
}

func TestPendingStore_ListIsSnapshot(t *testing.T) {
	s := NewPendingStore()
	_, err := s.Add("a@x.com", "h", "A", domain.RoleUser)
	require.NoError(t, err)

	users := s.List()
	require.Len(t, users, 1)

	// Mutations after the snapshot must not leak into it.
	require.NoError(t, s.MarkEmailVerified("a@x.com"))
	_, err = s.Add("b@x.com", "h", "B", domain.RoleUser)
	require.NoError(t, err)

	assert.Len(t, users, 1)
	assert.False(t, users[0].EmailVerified)
}

func TestPendingStore_MarkFlags(t *testing.T) {
	s := NewPendingStore()
	_, err := s.Add("a@x.com", "h", "A", domain.RoleUser)
	require.NoError(t, err)

	require.NoError(t, s.MarkEmailVerified("A@X.COM"))
	require.NoError(t, s.MarkAdminConfirmed("a@x.com"))

	got, err := s.Get("a@x.com")
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.True(t, got.AdminConfirmed)
	assert.True(t, got.Eligible())
}

func TestPendingStore_MarkUnknownEmail(t *testing.T) {
	s := NewPendingStore()
	err := s.MarkEmailVerified("ghost@x.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.MarkAdminConfirmed("ghost@x.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPendingStore_UpdatePasswordHash(t *testing.T) {
	s := NewPendingStore()
	_, err := s.Add("a@x.com", "old", "A", domain.RoleUser)
	require.NoError(t, err)

	require.NoError(t, s.UpdatePasswordHash("a@x.com", "new"))
	got, err := s.Get("a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
}

func TestPendingStore_Clear(t *testing.T) {
	s := NewPendingStore()
	_, err := s.Add("a@x.com", "h", "A", domain.RoleUser)
	require.NoError(t, err)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.List())
}

func TestPendingStore_ConcurrentListAndMutate(t *testing.T) {
	s := NewPendingStore()
	for i := 0; i < 10; i++ {
		_, err := s.Add(fmt.Sprintf("m%d@x.com", i), "h", "M", domain.RoleUser)
		require.NoError(t, err)
	}

	// Readers snapshotting while writers flip flags on the same entries.
	// The race detector flags List if it reads entries outside the lock.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.MarkEmailVerified(fmt.Sprintf("m%d@x.com", n))
			_ = s.MarkAdminConfirmed(fmt.Sprintf("m%d@x.com", n))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.List()
		}()
	}
	wg.Wait()

	users := s.List()
	require.Len(t, users, 10)
	for _, u := range users {
		assert.True(t, u.Eligible())
	}
}

func TestPendingStore_ConcurrentAdds(t *testing.T) {
	s := NewPendingStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.Add(fmt.Sprintf("c%d@x.com", n), "h", "C", domain.RoleUser)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
