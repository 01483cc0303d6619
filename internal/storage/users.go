package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

// UserByTokenHash resolves an API token digest to its user.
func (r *SQLiteRepository) UserByTokenHash(ctx context.Context, tokenHash string) (core.User, error) {
	var u core.User
	var created int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, name, created_at FROM users WHERE api_token_hash = ?", tokenHash).
		Scan(&u.ID, &u.Email, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("user")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by token: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

// CreateUser stores a user with the digest of its API token.
func (r *SQLiteRepository) CreateUser(ctx context.Context, email, name, tokenHash string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, name, api_token_hash, created_at) VALUES (?, ?, ?, ?)",
		email, strings.TrimSpace(name), tokenHash, now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.Conflict("a user with email %s already exists", email)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return core.User{ID: id, Email: email, Name: strings.TrimSpace(name), CreatedAt: fromNanos(now.UnixNano())}, nil
}

// isUniqueViolation matches SQLite's UNIQUE constraint failure text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	return isUniqueViolation(err)
}

// IsForeignKeyViolation reports whether err is a foreign key constraint failure.
func IsForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
