package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const userColumns = "id, name, email, password_hash, reset_token, reset_token_expiry, created_at"

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = core.Validation("Email already used")

// CreateUser inserts a new user. The email must already be normalized.
func (r *SQLiteRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (*core.User, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)",
		name, email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read user id: %w", err)
	}
	return r.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByEmail retrieves a user by normalized email.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetUserByResetToken retrieves the user holding the given reset token,
// regardless of expiry.
func (r *SQLiteRepository) GetUserByResetToken(ctx context.Context, token string) (*core.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE reset_token = ?", token))
}

// SetResetToken stores a password reset token and its expiry.
func (r *SQLiteRepository) SetResetToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET reset_token = ?, reset_token_expiry = ? WHERE id = ?",
		token, formatTime(expiry), userID,
	)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return expectAffected(result, "User not found")
}

// UpdatePassword replaces the password hash and clears any pending reset token.
func (r *SQLiteRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, reset_token = NULL, reset_token_expiry = NULL WHERE id = ?",
		passwordHash, userID,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(result, "User not found")
}

// UserCount returns the number of registered users.
func (r *SQLiteRepository) UserCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(row *sql.Row) (*core.User, error) {
	var (
		u         core.User
		token     sql.NullString
		expiry    sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &token, &expiry, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.ResetToken = nullableString(token)
	if u.ResetTokenExpiry, err = parseNullableTime(expiry); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func expectAffected(result sql.Result, notFoundMsg string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound(notFoundMsg)
	}
	return nil
}
