package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/enxitry/enxitry/internal/enxitry/store"
	sqlitestore "github.com/enxitry/enxitry/internal/enxitry/store/sqlite"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// ═══════════════════════════════════════════════════════════════════════════
// Load / Save
// ═══════════════════════════════════════════════════════════════════════════

func TestBackend_LoadMissingTableIsEmpty(t *testing.T) {
	conn := openTestDB(t)
	b := sqlitestore.New(conn, newTestWriter(t, conn))

	snap, err := b.Load(context.Background(), "Person")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Columns) != 0 || len(snap.Rows) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestBackend_SaveReplacesWholeTable(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	b := sqlitestore.New(conn, newTestWriter(t, conn))

	first := store.Snapshot{
		Columns: []string{"external_id", "name"},
		Rows:    [][]string{{"1", "Sato, Ken"}, {"2", "Ito, Mai"}, {"3", "山田, 太郎"}},
	}
	if err := b.Save(ctx, "Person", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := store.Snapshot{
		Columns: []string{"external_id", "name"},
		Rows:    [][]string{{"3", "山田, 太郎"}},
	}
	if err := b.Save(ctx, "Person", second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := b.Load(ctx, "Person")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0][1] != "山田, 太郎" {
		t.Errorf("unexpected rows %+v", got.Rows)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sheet_rows WHERE sheet = 'Person'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected stale rows to be removed, got %d", n)
	}
}

func TestBackend_TablesListsRowCounts(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	b := sqlitestore.New(conn, newTestWriter(t, conn))

	_ = b.Save(ctx, "Person", store.Snapshot{Columns: []string{"k"}, Rows: [][]string{{"a"}, {"b"}}})
	_ = b.Save(ctx, "EventLog", store.Snapshot{Columns: []string{"k"}})

	tables, err := b.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0].Name != "EventLog" || tables[0].Rows != 0 {
		t.Errorf("tables[0] = %+v", tables[0])
	}
	if tables[1].Name != "Person" || tables[1].Rows != 2 {
		t.Errorf("tables[1] = %+v", tables[1])
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Through store.Table
// ═══════════════════════════════════════════════════════════════════════════

func TestBackend_TypedTableRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "enxitry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	persons := store.NewTable(b, store.PersonSchema("Person"), store.DefaultRetryPolicy(), logging.NewNop())
	p := types.Person{ExternalID: "100000001", CardID: "04 A1 B2 C3", Name: "Sato, Ken", Status: types.StatusEntered}
	if err := persons.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := persons.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 || got[0] != p {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if err := b.Reopen(ctx); err != nil {
		t.Errorf("Reopen: %v", err)
	}
}
