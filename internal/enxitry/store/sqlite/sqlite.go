// Package sqlite is a store.Backend that keeps whole-table snapshots in
// SQLite, one CBOR-encoded cell array per row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	dbpkg "github.com/enxitry/enxitry/internal/db"
	"github.com/enxitry/enxitry/internal/enxitry/store"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

type Backend struct {
	db     *sql.DB
	writer *dbpkg.Worker
	owned  bool
	now    func() time.Time
}

// New wraps an open connection and writer owned by the caller.
func New(db *sql.DB, writer *dbpkg.Worker) *Backend {
	return &Backend{db: db, writer: writer, now: time.Now}
}

// Open opens (and migrates) the database at path. Close releases it.
func Open(ctx context.Context, path string) (*Backend, error) {
	conn, err := dbpkg.Open(ctx, dbpkg.Config{Path: path})
	if err != nil {
		return nil, err
	}
	b := New(conn, dbpkg.NewWorker(conn))
	b.owned = true
	return b, nil
}

func (b *Backend) Load(ctx context.Context, table string) (store.Snapshot, error) {
	var rawCols []byte
	err := b.db.QueryRowContext(ctx, `SELECT columns FROM sheets WHERE name = ?;`, table).Scan(&rawCols)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("Load %s columns: %w", table, err)
	}

	var snap store.Snapshot
	if err := cbor.Unmarshal(rawCols, &snap.Columns); err != nil {
		return store.Snapshot{}, fmt.Errorf("%w: %s header: %v", store.ErrMalformed, table, err)
	}

	rows, err := b.db.QueryContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY position;`, table)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("Load %s rows: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return store.Snapshot{}, fmt.Errorf("Load %s scan: %w", table, err)
		}
		var cells []string
		if err := cbor.Unmarshal(raw, &cells); err != nil {
			return store.Snapshot{}, fmt.Errorf("%w: %s row: %v", store.ErrMalformed, table, err)
		}
		snap.Rows = append(snap.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("Load %s: %w", table, err)
	}
	return snap, nil
}

func (b *Backend) Save(ctx context.Context, table string, snap store.Snapshot) error {
	cols, err := encMode.Marshal(snap.Columns)
	if err != nil {
		return fmt.Errorf("Save %s encode header: %w", table, err)
	}
	encoded := make([][]byte, len(snap.Rows))
	for i, r := range snap.Rows {
		if encoded[i], err = encMode.Marshal(r); err != nil {
			return fmt.Errorf("Save %s encode row %d: %w", table, i, err)
		}
	}
	nowMs := b.now().UTC().UnixMilli()

	return b.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureSheet(ctx, tx, table, cols, nowMs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?;`, table); err != nil {
			return fmt.Errorf("Save %s clear: %w", table, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows(sheet, position, cells) VALUES (?, ?, ?);`)
		if err != nil {
			return fmt.Errorf("Save %s prepare: %w", table, err)
		}
		defer stmt.Close()
		for i, cells := range encoded {
			if _, err := stmt.ExecContext(ctx, table, i, cells); err != nil {
				return fmt.Errorf("Save %s row %d: %w", table, i, err)
			}
		}
		return nil
	})
}

// Tables lists stored table names with their last update time.
func (b *Backend) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT s.name, s.updated_at_ms, COUNT(r.position)
FROM sheets s LEFT JOIN sheet_rows r ON r.sheet = s.name
GROUP BY s.name ORDER BY s.name;`)
	if err != nil {
		return nil, fmt.Errorf("Tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var (
			ti        TableInfo
			updatedMs int64
		)
		if err := rows.Scan(&ti.Name, &updatedMs, &ti.Rows); err != nil {
			return nil, fmt.Errorf("Tables scan: %w", err)
		}
		ti.UpdatedAt = time.UnixMilli(updatedMs).UTC()
		out = append(out, ti)
	}
	return out, rows.Err()
}

type TableInfo struct {
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reopen checks the connection. database/sql re-dials broken connections on
// its own, so a successful ping is all that is needed.
func (b *Backend) Reopen(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.db.PingContext(pingCtx)
}

func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	b.writer.Close()
	return b.db.Close()
}
