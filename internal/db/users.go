package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kuitang/shared-notes/internal/auth"
)

// UserStore implements auth.UserStore on SQLite.
type UserStore struct {
	db *sql.DB
}

// Create inserts a user. A taken email returns auth.ErrEmailTaken.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, toMillis(user.CreatedAt),
	)
	if isUniqueViolation(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail looks a user up by exact email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `WHERE email = ?`, email)
}

// FindByID looks a user up by id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, `WHERE id = ?`, id)
}

func (s *UserStore) findOne(ctx context.Context, where string, arg any) (*auth.User, error) {
	var (
		u         auth.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
