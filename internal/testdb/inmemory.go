// Package testdb opens isolated in-memory SQLite stores for tests.
package testdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/kuitang/shared-notes/internal/db"
)

var counter atomic.Int64

// testKey is a fixed SQLCipher key so tests exercise the encrypted code path.
var testKey = hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

// NewStoreInMemory creates a fresh encrypted in-memory store. Each call gets
// its own database. The pool is limited to one connection, so every statement
// is serialized.
func NewStoreInMemory() (*db.Store, error) {
	name := fmt.Sprintf("testdb-%d", counter.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_foreign_keys=on", name, testKey)

	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	// An in-memory database disappears with its last connection.
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	if err := db.InitSchema(context.Background(), sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db.NewStoreFromSQL(sqlDB), nil
}

// MustStore is NewStoreInMemory for tests; the store is closed at cleanup.
func MustStore(t interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}) *db.Store {
	t.Helper()
	store, err := NewStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
