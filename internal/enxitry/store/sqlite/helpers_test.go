package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/enxitry/enxitry/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the production
// PRAGMAs and migrations. It is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenDSN(context.Background(), db.MemoryDSN("test_"+t.Name()))
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}
