package service

import (
	"context"
	"errors"
	"strings"

	"github.com/enxitry/enxitry/internal/enxitry/store"
	"github.com/enxitry/enxitry/internal/enxitry/types"
)

var (
	ErrUnknownPerson    = errors.New("unknown person")
	ErrCardAlreadyBound = errors.New("card already bound to another person")
)

// Directory is the persistent side of the kiosk: the Person and EventLog
// tables.
type Directory struct {
	persons *store.Table[types.Person]
	events  *store.Table[types.EventLogEntry]
}

func NewDirectory(persons *store.Table[types.Person], events *store.Table[types.EventLogEntry]) *Directory {
	return &Directory{persons: persons, events: events}
}

func (d *Directory) Persons(ctx context.Context) ([]types.Person, error) {
	return d.persons.FetchAll(ctx)
}

// FindByCard fetches every person and returns the one bound to cardID.
func (d *Directory) FindByCard(ctx context.Context, cardID string) (types.Person, bool, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return types.Person{}, false, nil
	}
	all, err := d.persons.FetchAll(ctx)
	if err != nil {
		return types.Person{}, false, err
	}
	p, ok := byCard(all, cardID)
	return p, ok, nil
}

func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (types.Person, bool, error) {
	all, err := d.persons.FetchAll(ctx)
	if err != nil {
		return types.Person{}, false, err
	}
	p, ok := byExternalID(all, strings.TrimSpace(externalID))
	return p, ok, nil
}

func (d *Directory) SavePersons(ctx context.Context, ps ...types.Person) error {
	return d.persons.Upsert(ctx, ps...)
}

func (d *Directory) DeletePerson(ctx context.Context, externalID string) error {
	return d.persons.DeleteByKey(ctx, externalID)
}

func (d *Directory) AppendEvents(ctx context.Context, entries ...types.EventLogEntry) error {
	return d.events.Upsert(ctx, entries...)
}

func (d *Directory) Events(ctx context.Context) ([]types.EventLogEntry, error) {
	return d.events.FetchAll(ctx)
}

func byCard(all []types.Person, cardID string) (types.Person, bool) {
	for _, p := range all {
		if p.CardID == cardID {
			return p, true
		}
	}
	return types.Person{}, false
}

func byExternalID(all []types.Person, externalID string) (types.Person, bool) {
	for _, p := range all {
		if p.ExternalID == externalID {
			return p, true
		}
	}
	return types.Person{}, false
}
