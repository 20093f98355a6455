package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

func TestAdmin_OccupantsWithEntryTime(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.seed(t,
		types.Person{ExternalID: "2", CardID: "BB", Name: "Ito, Mai", Status: types.StatusEntered},
		types.Person{ExternalID: "1", CardID: "AA", Name: "Sato, Ken", Status: types.StatusExited},
	)
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if err := f.dir.AppendEvents(context.Background(),
		types.NewEventLogEntry("2", types.ActionEnter, t0),
		types.NewEventLogEntry("2", types.ActionExit, t0.Add(time.Hour)),
		types.NewEventLogEntry("2", types.ActionEnter, t0.Add(2*time.Hour)),
	); err != nil {
		t.Fatal(err)
	}

	recs, err := service.NewAdmin(f.dir, logging.NewNop()).Occupants(context.Background())
	if err != nil {
		t.Fatalf("Occupants: %v", err)
	}
	if len(recs) != 1 || recs[0].ExternalID != "2" {
		t.Fatalf("occupants = %+v", recs)
	}
	if !recs[0].EnteredAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("EnteredAt = %v", recs[0].EnteredAt)
	}
}

func TestAdmin_EventsNewestFirstWithLimit(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if err := f.dir.AppendEvents(context.Background(),
		types.NewEventLogEntry("1", types.ActionEnter, t0),
		types.NewEventLogEntry("2", types.ActionEnter, t0.Add(time.Minute)),
		types.NewEventLogEntry("1", types.ActionExit, t0.Add(2*time.Minute)),
	); err != nil {
		t.Fatal(err)
	}
	admin := service.NewAdmin(f.dir, logging.NewNop())

	es, err := admin.Events(context.Background(), "1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 2 || es[0].Action != types.ActionExit || es[1].Action != types.ActionEnter {
		t.Errorf("events for 1 = %+v", es)
	}

	es, err = admin.Events(context.Background(), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 1 || es[0].PersonExternalID != "1" || es[0].Action != types.ActionExit {
		t.Errorf("latest event = %+v", es)
	}
}

func TestAdmin_Unregister(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.seed(t, types.Person{ExternalID: "1", CardID: "AA", Name: "Sato, Ken", Status: types.StatusExited})
	admin := service.NewAdmin(f.dir, logging.NewNop())

	p, err := admin.Unregister(context.Background(), "1")
	if err != nil || p.Name != "Sato, Ken" {
		t.Fatalf("Unregister = %+v, %v", p, err)
	}
	if len(f.persons(t)) != 0 {
		t.Error("person still present")
	}
	if got := f.actions(t); len(got) != 1 || got[0] != types.ActionUnregister {
		t.Errorf("actions = %v", got)
	}

	if _, err := admin.Unregister(context.Background(), "1"); !errors.Is(err, service.ErrUnknownPerson) {
		t.Errorf("second unregister err = %v", err)
	}
}

func TestAdmin_ImportRoster(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.seed(t,
		types.Person{ExternalID: "1", CardID: "04 A1 B2 C3", Name: "Sato, Ken", Status: types.StatusEntered},
		types.Person{ExternalID: "2", CardID: "04 00 00 01", Name: "Ito, Mai", Status: types.StatusExited},
	)
	roster := `
people:
  - external_id: "1"
    name: "Sato, Kenji"
  - external_id: "2"
    name: "Ito, Mai"
  - external_id: "3"
    name: "Mori, Ai"
    card_id: "04:de:ad:01"
  - external_id: "4"
    name: "Dup, Card"
    card_id: "04a1b2c3"
  - name: "No, Id"
`
	res, err := service.NewAdmin(f.dir, logging.NewNop()).Import(context.Background(), strings.NewReader(roster))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Added != 1 || res.Updated != 1 || res.Unchanged != 1 || len(res.Rejected) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Rejected[0], service.ErrCardAlreadyBound) {
		t.Errorf("rejection = %v", res.Rejected[0])
	}

	byID := map[string]types.Person{}
	for _, p := range f.persons(t) {
		byID[p.ExternalID] = p
	}
	if p := byID["1"]; p.Name != "Sato, Kenji" || p.Status != types.StatusEntered || p.CardID != "04 A1 B2 C3" {
		t.Errorf("updated person = %+v", p)
	}
	if p := byID["3"]; p.Status != types.StatusExited || p.CardID != "04 DE AD 01" {
		t.Errorf("added person = %+v", p)
	}
	if got := f.actions(t); len(got) != 1 || got[0] != types.ActionRegister {
		t.Errorf("actions = %v", got)
	}
}

func TestAdmin_ImportKeepsNameWhenBlank(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	seeded := types.Person{ExternalID: "1", CardID: "04 A1 B2 C3", Name: "Sato, Ken", Status: types.StatusExited}
	f.seed(t, seeded)
	roster := `
people:
  - external_id: "1"
    card_id: "04a1b2c3"
`
	res, err := service.NewAdmin(f.dir, logging.NewNop()).Import(context.Background(), strings.NewReader(roster))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Unchanged != 1 || res.Updated != 0 {
		t.Errorf("result = %+v", res)
	}
	if ps := f.persons(t); len(ps) != 1 || ps[0] != seeded {
		t.Errorf("persons = %+v", ps)
	}
}

func TestAdmin_ImportRejectsUnknownFields(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	_, err := service.NewAdmin(f.dir, logging.NewNop()).Import(context.Background(),
		strings.NewReader("people:\n  - external_id: \"1\"\n    nickname: x\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
