package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultPath is the default database file.
	DefaultPath = "./data/notes.db"

	// MaxOpenConns bounds the pool. SQLite is single-writer, so high counts
	// only add lock contention.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns = 2

	// EncryptionKeyBytes is the SQLCipher key length.
	EncryptionKeyBytes = 32
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and the repositories built on it.
type Store struct {
	db    *sql.DB
	users *UserStore
	notes *NoteStore
}

// NewStoreFromSQL wraps an open database whose schema is already applied.
func NewStoreFromSQL(sqlDB *sql.DB) *Store {
	return &Store{
		db:    sqlDB,
		users: &UserStore{db: sqlDB},
		notes: &NoteStore{db: sqlDB},
	}
}

// Open opens (creating if needed) the database file at path and applies the
// schema. A non-nil key enables SQLCipher encryption and must be 32 bytes.
func Open(ctx context.Context, path string, key []byte) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if key != nil && len(key) != EncryptionKeyBytes {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", EncryptionKeyBytes, len(key))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path
	if key != nil {
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	// With a wrong key this is the first statement to fail.
	var sqliteVersion string
	if err := sqlDB.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if err := InitSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return NewStoreFromSQL(sqlDB), nil
}

// InitSchema applies Schema to sqlDB.
func InitSchema(ctx context.Context, sqlDB *sql.DB) error {
	if _, err := sqlDB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Users returns the user repository.
func (s *Store) Users() *UserStore {
	return s.users
}

// Notes returns the note repository.
func (s *Store) Notes() *NoteStore {
	return s.notes
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, sqlDB *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

func sqliteCommonParams() string {
	// WAL + NORMAL gives good throughput while staying crash-safe. Immediate
	// transactions take the write lock at BEGIN so busy_timeout applies.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
