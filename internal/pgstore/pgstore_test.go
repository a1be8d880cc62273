package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/shared-notes/internal/auth"
	"github.com/kuitang/shared-notes/internal/notes"
)

var noteCols = []string{"id", "title", "description", "owner_id", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestRunMigrations_UsesEmbeddedDir(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	err := RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate: boom")
}

func TestMigrations_Embedded(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	s := string(body)
	assert.True(t, strings.HasPrefix(s, "-- +goose Up"))
	assert.Contains(t, s, "-- +goose Down")
	assert.Contains(t, s, "PRIMARY KEY (note_id, user_id)")
}

func TestFilterClause_NumbersParameters(t *testing.T) {
	var a args
	where := filterClause(notes.Filter{OwnerID: "u1", SharedWith: "u2"}, &a)
	assert.Equal(t, " WHERE n.owner_id = $1 AND EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = $2)", where)
	assert.Equal(t, args{"u1", "u2"}, a)

	a = nil
	where = filterClause(notes.Filter{VisibleTo: "u3"}, &a)
	assert.Equal(t, " WHERE (n.owner_id = $1 OR EXISTS (SELECT 1 FROM note_shares s WHERE s.note_id = n.id AND s.user_id = $1))", where)
	assert.Equal(t, args{"u3"}, a)

	a = nil
	assert.Empty(t, filterClause(notes.Filter{}, &a))
	assert.Empty(t, a)
}

func TestUserStore_Create(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)
	u := &auth.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", CreatedAt: time.Now()}

	mock.ExpectExec(`INSERT INTO users \(id, username, email, password_hash, created_at\)`).
		WithArgs("u1", "alice", "alice@example.com", "h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Create(context.Background(), u))

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.ErrorIs(t, store.Create(context.Background(), u), auth.ErrEmailTaken)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("db down"))
	err := store.Create(context.Background(), u)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrEmailTaken)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestUserStore_Find(t *testing.T) {
	db, mock := newMock(t)
	store := NewUserStore(db)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, username, email, password_hash, created_at FROM users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}).
			AddRow("u1", "alice", "alice@example.com", "h", created))
	got, err := store.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, created, got.CreatedAt)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}))
	_, err = store.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestNoteStore_FindLoadsSharesInOrder(t *testing.T) {
	db, mock := newMock(t)
	store := NewNoteStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM notes n WHERE n\.owner_id = \$1 ORDER BY n\.created_at, n\.seq`).
		WithArgs("owner").
		WillReturnRows(sqlmock.NewRows(noteCols).
			AddRow("n1", "t1", "d1", "owner", now, now).
			AddRow("n2", "t2", "d2", "owner", now, now))
	mock.ExpectQuery(`FROM note_shares WHERE note_id IN \(\$1, \$2\) ORDER BY seq`).
		WithArgs("n1", "n2").
		WillReturnRows(sqlmock.NewRows([]string{"note_id", "user_id"}).
			AddRow("n2", "bob").
			AddRow("n1", "carol").
			AddRow("n2", "alice"))

	got, err := store.Find(context.Background(), notes.Filter{OwnerID: "owner"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"carol"}, got[0].SharedWith)
	assert.Equal(t, []string{"bob", "alice"}, got[1].SharedWith)
}

func TestNoteStore_FindBatchesShareQueries(t *testing.T) {
	db, mock := newMock(t)
	store := NewNoteStore(db)
	now := time.Now().UTC()

	total := shareBatchSize + 1
	noteRows := sqlmock.NewRows(noteCols)
	firstBatch := make([]driver.Value, 0, shareBatchSize)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("n%d", i)
		noteRows.AddRow(id, "t", "d", "owner", now, now)
		if i < shareBatchSize {
			firstBatch = append(firstBatch, id)
		}
	}
	last := fmt.Sprintf("n%d", shareBatchSize)

	mock.ExpectQuery(`FROM notes n WHERE n\.owner_id = \$1`).
		WithArgs("owner").
		WillReturnRows(noteRows)
	mock.ExpectQuery(`FROM note_shares WHERE note_id IN \(\$1, \$2, .*\$500\) ORDER BY seq`).
		WithArgs(firstBatch...).
		WillReturnRows(sqlmock.NewRows([]string{"note_id", "user_id"}).
			AddRow("n0", "bob").
			AddRow("n0", "alice"))
	mock.ExpectQuery(`FROM note_shares WHERE note_id IN \(\$1\) ORDER BY seq`).
		WithArgs(last).
		WillReturnRows(sqlmock.NewRows([]string{"note_id", "user_id"}).AddRow(last, "carol"))

	got, err := store.Find(context.Background(), notes.Filter{OwnerID: "owner"})
	require.NoError(t, err)
	require.Len(t, got, total)
	assert.Equal(t, []string{"bob", "alice"}, got[0].SharedWith)
	assert.Equal(t, []string{"carol"}, got[shareBatchSize].SharedWith)
	assert.Empty(t, got[1].SharedWith)
}

func TestNoteStore_FindEmptySkipsShareQuery(t *testing.T) {
	db, mock := newMock(t)
	store := NewNoteStore(db)

	mock.ExpectQuery(`FROM notes n WHERE`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(noteCols))
	got, err := store.Find(context.Background(), notes.Filter{VisibleTo: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNoteStore_Insert(t *testing.T) {
	db, mock := newMock(t)
	store := NewNoteStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO notes \(id, title, description, owner_id, created_at, updated_at\)`).
		WithArgs("n1", "t", "d", "owner", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO note_shares`).
		WithArgs("n1", "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Insert(context.Background(), &notes.Note{
		ID: "n1", Title: "t", Description: "d", OwnerID: "owner",
		SharedWith: []string{"bob"}, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
}

func TestNoteStore_AddShare(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("duplicate", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT 1 FROM notes WHERE id = \$1 FOR UPDATE`).
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO note_shares`).
			WithArgs("n1", "bob", sqlmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err := NewNoteStore(db).AddShare(ctx, "n1", "bob")
		assert.ErrorIs(t, err, notes.ErrAlreadyShared)
	})

	t.Run("missing note", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT 1 FROM notes WHERE id = \$1`).
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}))
		mock.ExpectRollback()

		_, err := NewNoteStore(db).AddShare(ctx, "gone", "bob")
		assert.ErrorIs(t, err, notes.ErrNotFound)
	})

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT 1 FROM notes WHERE id = \$1`).
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO note_shares`).
			WithArgs("n1", "bob", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM notes n WHERE n\.id = \$1 ORDER BY n\.created_at, n\.seq LIMIT 1`).
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows(noteCols).AddRow("n1", "t", "d", "owner", now, now))
		mock.ExpectQuery(`FROM note_shares`).
			WithArgs("n1").
			WillReturnRows(sqlmock.NewRows([]string{"note_id", "user_id"}).AddRow("n1", "bob"))
		mock.ExpectCommit()

		got, err := NewNoteStore(db).AddShare(ctx, "n1", "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, got.SharedWith)
	})
}

func TestNoteStore_UpdateMissingNote(t *testing.T) {
	db, mock := newMock(t)
	title := "new"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE notes`).
		WithArgs("new", nil, "owner", sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := NewNoteStore(db).UpdateByID(context.Background(), "gone", notes.NoteUpdate{
		Title: &title, OwnerID: "owner", UpdatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, notes.ErrNotFound)
}

func TestNoteStore_DeleteReturnsRemovedNote(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM notes n WHERE n\.id = \$1`).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(noteCols).AddRow("n1", "t", "d", "owner", now, now))
	mock.ExpectQuery(`FROM note_shares`).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"note_id", "user_id"}))
	mock.ExpectExec(`DELETE FROM notes WHERE id = \$1`).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := NewNoteStore(db).DeleteByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, []string{}, got.SharedWith)
}

func TestNoteStore_TextSearch(t *testing.T) {
	db, mock := newMock(t)
	store := NewNoteStore(db)

	got, err := store.TextSearch(context.Background(), notes.Filter{VisibleTo: "u1"}, "   ")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	mock.ExpectQuery(`to_tsvector\('simple', n\.title \|\| ' ' \|\| n\.description\) @@ plainto_tsquery\('simple', \$2\)`).
		WithArgs("u1", "grocery list").
		WillReturnRows(sqlmock.NewRows(noteCols))
	got, err = store.TextSearch(context.Background(), notes.Filter{VisibleTo: "u1"}, "grocery list")
	require.NoError(t, err)
	assert.Empty(t, got)
}
