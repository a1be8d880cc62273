package notes

import (
	"context"
	"time"
)

// Repository persists notes and answers filtered and full-text queries.
// Implementations live in internal/db (SQLite) and internal/pgstore (PostgreSQL).
type Repository interface {
	Insert(ctx context.Context, note *Note) error
	FindOne(ctx context.Context, filter Filter) (*Note, error)
	Find(ctx context.Context, filter Filter) ([]Note, error)
	UpdateByID(ctx context.Context, id string, update NoteUpdate) (*Note, error)
	DeleteByID(ctx context.Context, id string) (*Note, error)
	AddShare(ctx context.Context, id, userID string) (*Note, error)
	TextSearch(ctx context.Context, filter Filter, query string) ([]Note, error)
}

// UserLookup answers whether a user id exists.
type UserLookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Notifier is told about successful shares. Failures are logged and ignored.
type Notifier interface {
	NoteShared(ctx context.Context, note *Note, sharedUserID string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
