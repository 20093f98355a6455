package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

func newSupervisor(f *fixture) *service.Supervisor {
	rf := service.NewRefresher(f.dir, f.display, 10*time.Millisecond, logging.NewNop())
	return service.NewSupervisor(f.scanner, rf, f.attendance, f.display, logging.NewNop())
}

func TestSupervisor_SessionHandlesTaps(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.seed(t, types.Person{ExternalID: "1", CardID: "AA", Name: "Sato, Ken", Status: types.StatusExited})
	sup := newSupervisor(f)
	defer sup.Stop()

	sup.StartSession(context.Background())
	f.reader.tap("AA")

	eventually(t, func() bool { return len(f.actions(t)) == 1 })
	eventually(t, func() bool { return f.display.Snapshot().Occupancy.Contains("1") })
}

func TestSupervisor_NewSessionRevokesPrevious(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	sup := newSupervisor(f)
	defer sup.Stop()

	first := sup.StartSession(context.Background())
	second := sup.StartSession(context.Background())

	if !first.Revoked() {
		t.Error("first generation still live")
	}
	if second.Revoked() || sup.Current() != second {
		t.Error("second generation should be current")
	}
	if got := f.display.Snapshot().Generation; got != second.ID {
		t.Errorf("display generation = %d, want %d", got, second.ID)
	}
}

func TestSupervisor_StopEndsBothLoops(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.seed(t, types.Person{ExternalID: "1", CardID: "AA", Name: "Sato, Ken", Status: types.StatusEntered})
	sup := newSupervisor(f)

	sup.StartSession(context.Background())
	eventually(t, func() bool { return f.reader.scans.Load() > 0 })
	eventually(t, func() bool { return f.display.Snapshot().Occupancy.Contains("1") })

	stopped := make(chan struct{})
	go func() {
		sup.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	scans := f.reader.scans.Load()
	before := f.display.Snapshot().Version
	time.Sleep(50 * time.Millisecond)
	if f.reader.scans.Load() != scans {
		t.Error("poller still running after Stop")
	}
	if f.display.Snapshot().Version != before {
		t.Error("display still updating after Stop")
	}
}
