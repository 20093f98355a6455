package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureSheet creates or updates the sheets row for name so that sheet_rows
// foreign keys are satisfied and the header reflects the latest save.
//
// Must be called inside an existing transaction.
func ensureSheet(ctx context.Context, tx *sql.Tx, name string, columns []byte, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sheets(name, columns, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  columns = excluded.columns,
  updated_at_ms = excluded.updated_at_ms;
`, name, columns, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureSheet %s: %w", name, err)
	}
	return nil
}
