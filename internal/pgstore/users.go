package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kuitang/shared-notes/internal/auth"
)

// UserStore implements auth.UserStore on PostgreSQL.
type UserStore struct {
	db DBTX
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore returns a user repository bound to db.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a user. A taken email returns auth.ErrEmailTaken.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return auth.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByEmail looks a user up by exact email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `email = $1`, email)
}

// FindByID looks a user up by id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, `id = $1`, id)
}

func (s *UserStore) findOne(ctx context.Context, cond string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE `+cond, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
