package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// Admin holds the operator commands that sit outside the tap flow.
type Admin struct {
	dir    *Directory
	logger *slog.Logger
	now    func() time.Time
}

func NewAdmin(dir *Directory, logger *slog.Logger) *Admin {
	return &Admin{dir: dir, logger: logging.NewComponentLogger(logger, "admin"), now: time.Now}
}

// OccupantRecord is an entered person with the time of their latest ENTER.
// EnteredAt is zero when the log has no matching entry.
type OccupantRecord struct {
	types.Person
	EnteredAt time.Time
}

func (a *Admin) Occupants(ctx context.Context) ([]OccupantRecord, error) {
	persons, err := a.dir.Persons(ctx)
	if err != nil {
		return nil, err
	}
	events, err := a.dir.Events(ctx)
	if err != nil {
		return nil, err
	}
	lastEnter := make(map[string]time.Time)
	for _, e := range events {
		if e.Action == types.ActionEnter && e.Timestamp.After(lastEnter[e.PersonExternalID]) {
			lastEnter[e.PersonExternalID] = e.Timestamp
		}
	}

	var out []OccupantRecord
	for _, p := range persons {
		if p.Status == types.StatusEntered {
			out = append(out, OccupantRecord{Person: p, EnteredAt: lastEnter[p.ExternalID]})
		}
	}
	slices.SortFunc(out, func(x, y OccupantRecord) int { return strings.Compare(x.ExternalID, y.ExternalID) })
	return out, nil
}

// Events returns up to limit entries, newest first. An empty externalID
// matches everyone; limit <= 0 means no limit.
func (a *Admin) Events(ctx context.Context, externalID string, limit int) ([]types.EventLogEntry, error) {
	all, err := a.dir.Events(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.EventLogEntry
	for _, e := range all {
		if externalID == "" || e.PersonExternalID == externalID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(x, y types.EventLogEntry) int {
		if c := y.Timestamp.Compare(x.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(y.ID, x.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Unregister deletes the person and logs UNREGISTER.
func (a *Admin) Unregister(ctx context.Context, externalID string) (types.Person, error) {
	p, ok, err := a.dir.FindByExternalID(ctx, externalID)
	if err != nil {
		return types.Person{}, err
	}
	if !ok {
		return types.Person{}, fmt.Errorf("%w: %s", ErrUnknownPerson, externalID)
	}
	if err := a.dir.DeletePerson(ctx, p.ExternalID); err != nil {
		return types.Person{}, err
	}
	if err := a.dir.AppendEvents(ctx, types.NewEventLogEntry(p.ExternalID, types.ActionUnregister, a.now())); err != nil {
		return types.Person{}, fmt.Errorf("person removed but log append failed: %w", err)
	}
	a.logger.Info("person unregistered", slog.String("external_id", p.ExternalID))
	return p, nil
}

// Roster is the YAML import document.
type Roster struct {
	People []RosterEntry `yaml:"people"`
}

type RosterEntry struct {
	ExternalID string `yaml:"external_id"`
	Name       string `yaml:"name"`
	CardID     string `yaml:"card_id"`
}

type ImportResult struct {
	Added     int
	Updated   int
	Unchanged int
	Rejected  []error
}

// Import upserts roster entries. New people start EXITED with a REGISTER
// entry; known people keep their status and only get name or card changes.
// Entries whose card belongs to someone else are rejected individually.
func (a *Admin) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var roster Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, fmt.Errorf("parse roster: %w", err)
	}

	persons, err := a.dir.Persons(ctx)
	if err != nil {
		return ImportResult{}, err
	}

	var (
		res     ImportResult
		upserts []types.Person
		events  []types.EventLogEntry
		at      = a.now()
	)
	for i, e := range roster.People {
		id := strings.TrimSpace(e.ExternalID)
		if id == "" {
			res.Rejected = append(res.Rejected, fmt.Errorf("entry %d: external_id is required", i+1))
			continue
		}
		card := ""
		if strings.TrimSpace(e.CardID) != "" {
			if card, err = device.NormalizeCardID(e.CardID); err != nil {
				res.Rejected = append(res.Rejected, fmt.Errorf("entry %d: %w", i+1, err))
				continue
			}
			if bound, ok := byCard(persons, card); ok && bound.ExternalID != id {
				res.Rejected = append(res.Rejected, fmt.Errorf("entry %d: %w: %s", i+1, ErrCardAlreadyBound, bound.ExternalID))
				continue
			}
		}

		next := types.Person{ExternalID: id, CardID: card, Name: strings.TrimSpace(e.Name), Status: types.StatusExited}
		if cur, ok := byExternalID(persons, id); ok {
			next.Status = cur.Status
			if next.CardID == "" {
				next.CardID = cur.CardID
			}
			if next.Name == "" {
				next.Name = cur.Name
			}
			if next == cur {
				res.Unchanged++
				continue
			}
			res.Updated++
		} else {
			res.Added++
			events = append(events, types.NewEventLogEntry(id, types.ActionRegister, at))
		}
		upserts = append(upserts, next)
		persons = upsertLocal(persons, next)
	}

	if err := a.dir.SavePersons(ctx, upserts...); err != nil {
		return ImportResult{}, err
	}
	if err := a.dir.AppendEvents(ctx, events...); err != nil {
		return ImportResult{}, err
	}
	a.logger.Info("roster imported",
		slog.Int("added", res.Added),
		slog.Int("updated", res.Updated),
		slog.Int("rejected", len(res.Rejected)),
	)
	return res, nil
}

func upsertLocal(all []types.Person, p types.Person) []types.Person {
	for i := range all {
		if all[i].ExternalID == p.ExternalID {
			all[i] = p
			return all
		}
	}
	return append(all, p)
}
