package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dashboard-api/internal/domain"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// UserRepo provides typed operations on the users table.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Ping is the trivial connectivity query used by the reachability probe.
// The caller supplies the deadline via ctx.
func (r *UserRepo) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	const query = `
		INSERT INTO users (user_id, email, password_hash, display_name, role,
			email_verified, admin_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		u.UserID, u.Email, u.PasswordHash, u.DisplayName, u.Role,
		u.EmailVerified, u.AdminConfirmed, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("user %s: %w", u.Email, domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
		SELECT user_id, email, password_hash, display_name, role,
			email_verified, admin_confirmed, created_at, updated_at
		FROM users WHERE email = $1`
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&u.UserID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role,
		&u.EmailVerified, &u.AdminConfirmed, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// UpdateVerificationFlags sets the verification and confirmation flags for
// the user with the given email.
func (r *UserRepo) UpdateVerificationFlags(ctx context.Context, email string, emailVerified, adminConfirmed bool) error {
	const query = `
		UPDATE users SET email_verified = $2, admin_confirmed = $3, updated_at = $4
		WHERE email = $1`
	res, err := r.db.ExecContext(ctx, query, email, emailVerified, adminConfirmed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update verification flags: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE email = $1`
	res, err := r.db.ExecContext(ctx, query, email, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return nil
}
