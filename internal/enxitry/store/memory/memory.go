// Package memory is an in-process store.Backend with fault injection.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/enxitry/enxitry/internal/enxitry/store"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("memory: injected fault")

type Op string

const (
	OpLoad Op = "load"
	OpSave Op = "save"
)

// Fault fails matching calls. An empty Table or Op matches any. Times <= 0
// fails until ClearFaults.
type Fault struct {
	Table string
	Op    Op
	Times int
	Err   error
}

type Backend struct {
	mu      sync.RWMutex
	tables  map[string]store.Snapshot
	faults  []*Fault
	calls   map[Op]map[string]int
	reopens int
	closed  bool
}

func New() *Backend {
	return &Backend{
		tables: make(map[string]store.Snapshot),
		calls:  map[Op]map[string]int{OpLoad: {}, OpSave: {}},
	}
}

func (b *Backend) Load(_ context.Context, table string) (store.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[OpLoad][table]++
	if err := b.fault(table, OpLoad); err != nil {
		return store.Snapshot{}, err
	}
	return b.tables[table].Clone(), nil
}

func (b *Backend) Save(_ context.Context, table string, snap store.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls[OpSave][table]++
	if err := b.fault(table, OpSave); err != nil {
		return err
	}
	b.tables[table] = snap.Clone()
	return nil
}

func (b *Backend) Reopen(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reopens++
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// fault must be called with b.mu held.
func (b *Backend) fault(table string, op Op) error {
	if b.closed {
		return errors.New("memory: backend closed")
	}
	for i, f := range b.faults {
		if (f.Table != "" && f.Table != table) || (f.Op != "" && f.Op != op) {
			continue
		}
		err := f.Err
		if err == nil {
			err = ErrInjected
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				b.faults = append(b.faults[:i], b.faults[i+1:]...)
			}
		}
		return err
	}
	return nil
}

// Inject adds a fault. Faults are matched in insertion order.
func (b *Backend) Inject(f Fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, &f)
}

func (b *Backend) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = nil
}

// Calls reports how many times op was attempted on table, failed or not.
func (b *Backend) Calls(op Op, table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op][table]
}

func (b *Backend) Reopens() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reopens
}

// Put seeds a table directly, bypassing faults and counters.
func (b *Backend) Put(table string, snap store.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[table] = snap.Clone()
}

// Snapshot returns a copy of a table, bypassing faults and counters.
func (b *Backend) Snapshot(table string) store.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tables[table].Clone()
}

// Tables lists table names in sorted order.
func (b *Backend) Tables() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tables))
	for n := range b.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
