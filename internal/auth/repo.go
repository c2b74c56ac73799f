package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/shared"
)

// Repository defines persistence operations for console accounts.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	TouchLogin(ctx context.Context, userID int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const findUserByUsername = `SELECT id, username, password_hash, role, region, password_change_required, is_active, last_login_at, created_at, updated_at
FROM console_users
WHERE lower(username) = lower($1)`

// FindByUsername fetches an account by username, case-insensitively.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var (
		user      User
		role      string
		region    pgtype.Text
		lastLogin pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, findUserByUsername, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&role,
		&region,
		&user.PasswordChangeRequired,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = access.Role(role)
	user.Region = region.String
	if lastLogin.Valid {
		at := lastLogin.Time
		user.LastLoginAt = &at
	}
	return &user, nil
}

// UpdatePassword stores a new hash and clears the pending change flag.
func (r *PGRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE console_users
SET password_hash = $2, password_change_required = FALSE, updated_at = NOW()
WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLogin records the time of a successful sign-in.
func (r *PGRepository) TouchLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE console_users SET last_login_at = $2 WHERE id = $1`, userID, at.UTC())
	return err
}

var _ Repository = (*PGRepository)(nil)
