// Package store binds typed rows onto whole-table snapshots held by a
// pluggable Backend and owns the retry and reconnect policy around it.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnavailable is matched by every *UnavailableError.
	ErrUnavailable = errors.New("store unavailable")
	// ErrMalformed marks rows that cannot be decoded. It is never retried.
	ErrMalformed = errors.New("malformed row")
)

// Snapshot is a whole table: a header row and string cells.
type Snapshot struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Clone deep-copies s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Columns: slices.Clone(s.Columns)}
	if s.Rows != nil {
		out.Rows = make([][]string, len(s.Rows))
		for i, r := range s.Rows {
			out.Rows[i] = slices.Clone(r)
		}
	}
	return out
}

// Backend stores whole tables. Implementations need not be transactional;
// Save replaces the named table wholesale.
type Backend interface {
	Load(ctx context.Context, table string) (Snapshot, error)
	Save(ctx context.Context, table string, snap Snapshot) error
	// Reopen drops and re-establishes the underlying connection.
	Reopen(ctx context.Context) error
	Close() error
}

// UnavailableError reports an operation that failed on every attempt.
type UnavailableError struct {
	Table    string
	Op       string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store %s %s: unavailable after %d attempts: %v", e.Table, e.Op, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
