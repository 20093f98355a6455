package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/enxitry/enxitry/internal/logging"
)

// Table is a typed repository over one backend table. Writes read the whole
// snapshot, modify it, and save it back; concurrent writers may lose updates.
type Table[T any] struct {
	backend Backend
	schema  Schema[T]
	policy  RetryPolicy
	logger  *slog.Logger
}

func NewTable[T any](backend Backend, schema Schema[T], policy RetryPolicy, logger *slog.Logger) *Table[T] {
	return &Table[T]{
		backend: backend,
		schema:  schema,
		policy:  policy,
		logger:  logging.NewComponentLogger(logger, "store").With(slog.String("table", schema.Name)),
	}
}

func (t *Table[T]) Name() string { return t.schema.Name }

// FetchAll returns every row in table order.
func (t *Table[T]) FetchAll(ctx context.Context) ([]T, error) {
	var out []T
	err := run(ctx, t.backend, t.policy, t.logger, t.schema.Name, "fetch", func(ctx context.Context) error {
		snap, err := t.backend.Load(ctx, t.schema.Name)
		if err != nil {
			return err
		}
		out, err = t.decodeAll(snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert replaces rows whose key already exists and appends the rest.
func (t *Table[T]) Upsert(ctx context.Context, rows ...T) error {
	if len(rows) == 0 {
		return nil
	}
	return t.modify(ctx, "upsert", func(snap *Snapshot, layout []int) {
		index := keyIndex(snap, layout[0])
		for _, r := range rows {
			cells := t.schema.Encode(r)
			if i, ok := index[cells[0]]; ok {
				for ci, pos := range layout {
					snap.Rows[i][pos] = cells[ci]
				}
				continue
			}
			row := make([]string, len(snap.Columns))
			for ci, pos := range layout {
				row[pos] = cells[ci]
			}
			snap.Rows = append(snap.Rows, row)
			index[cells[0]] = len(snap.Rows) - 1
		}
	})
}

// DeleteByKey removes every row whose key is in keys. Unknown keys are ignored.
func (t *Table[T]) DeleteByKey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return t.modify(ctx, "delete", func(snap *Snapshot, layout []int) {
		snap.Rows = slices.DeleteFunc(snap.Rows, func(r []string) bool {
			return slices.Contains(keys, r[layout[0]])
		})
	})
}

func (t *Table[T]) modify(ctx context.Context, op string, mutate func(snap *Snapshot, layout []int)) error {
	return run(ctx, t.backend, t.policy, t.logger, t.schema.Name, op, func(ctx context.Context) error {
		snap, err := t.backend.Load(ctx, t.schema.Name)
		if err != nil {
			return err
		}
		snap = snap.Clone()
		layout := t.conform(&snap)
		mutate(&snap, layout)
		return t.backend.Save(ctx, t.schema.Name, snap)
	})
}

// conform makes sure every schema column exists in snap, padding short rows,
// and returns the position of each schema column in the snapshot header.
func (t *Table[T]) conform(snap *Snapshot) []int {
	if len(snap.Columns) == 0 {
		snap.Columns = slices.Clone(t.schema.Columns)
	}
	layout := make([]int, len(t.schema.Columns))
	for i, c := range t.schema.Columns {
		pos := slices.Index(snap.Columns, c)
		if pos < 0 {
			snap.Columns = append(snap.Columns, c)
			pos = len(snap.Columns) - 1
		}
		layout[i] = pos
	}
	for i, r := range snap.Rows {
		if len(r) < len(snap.Columns) {
			snap.Rows[i] = append(r, make([]string, len(snap.Columns)-len(r))...)
		}
	}
	return layout
}

func (t *Table[T]) decodeAll(snap Snapshot) ([]T, error) {
	out := make([]T, 0, len(snap.Rows))
	for i, r := range snap.Rows {
		cells := make(map[string]string, len(snap.Columns))
		for ci, c := range snap.Columns {
			if ci < len(r) {
				cells[c] = r[ci]
			}
		}
		v, err := t.schema.Decode(cells)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrMalformed, t.schema.Name, i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func keyIndex(snap *Snapshot, keyPos int) map[string]int {
	idx := make(map[string]int, len(snap.Rows))
	for i, r := range snap.Rows {
		idx[r[keyPos]] = i
	}
	return idx
}
