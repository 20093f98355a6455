package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/types"
)

// Schema binds T to a table. Columns[0] is the key column and Encode must
// return cells in Columns order.
type Schema[T any] struct {
	Name    string
	Columns []string
	Encode  func(T) []string
	Decode  func(cells map[string]string) (T, error)
}

func PersonSchema(name string) Schema[types.Person] {
	return Schema[types.Person]{
		Name:    name,
		Columns: []string{"external_id", "card_id", "name", "status"},
		Encode: func(p types.Person) []string {
			return []string{p.ExternalID, p.CardID, p.Name, string(p.Status)}
		},
		Decode: func(c map[string]string) (types.Person, error) {
			st, err := types.ParseStatus(c["status"])
			if err != nil {
				return types.Person{}, err
			}
			id := strings.TrimSpace(c["external_id"])
			if id == "" {
				return types.Person{}, fmt.Errorf("empty external_id")
			}
			return types.Person{
				ExternalID: id,
				CardID:     c["card_id"],
				Name:       c["name"],
				Status:     st,
			}, nil
		},
	}
}

// EventSchema writes timestamps as RFC 3339 in loc.
func EventSchema(name string, loc *time.Location) Schema[types.EventLogEntry] {
	if loc == nil {
		loc = time.UTC
	}
	return Schema[types.EventLogEntry]{
		Name:    name,
		Columns: []string{"id", "person_external_id", "timestamp", "action"},
		Encode: func(e types.EventLogEntry) []string {
			return []string{e.ID, e.PersonExternalID, e.Timestamp.In(loc).Format(time.RFC3339), string(e.Action)}
		},
		Decode: func(c map[string]string) (types.EventLogEntry, error) {
			ts, err := time.Parse(time.RFC3339, c["timestamp"])
			if err != nil {
				return types.EventLogEntry{}, fmt.Errorf("timestamp: %w", err)
			}
			action, err := types.ParseAction(c["action"])
			if err != nil {
				return types.EventLogEntry{}, err
			}
			return types.EventLogEntry{
				ID:               c["id"],
				PersonExternalID: c["person_external_id"],
				Timestamp:        ts.In(loc),
				Action:           action,
			}, nil
		},
	}
}
