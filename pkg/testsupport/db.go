package testsupport

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // register the sqlite driver for tests
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/majo1520/IT-STOCK-sub001/store"
)

// OpenDB opens an isolated in-memory SQLite database with the canonical
// schema created. The handle is closed when the test finishes.
func OpenDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	if err := store.CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}
