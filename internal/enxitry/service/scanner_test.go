package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/service"
)

func TestScanner_ScanReturnsFirstTap(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.reader.tap("AA")
	}()
	id, ok := f.scanner.Scan(context.Background(), time.Second)
	if !ok || id != "AA" {
		t.Fatalf("Scan = %q, %v", id, ok)
	}
}

func TestScanner_ZeroTimeoutPollsOnce(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	if _, ok := f.scanner.Scan(context.Background(), 0); ok {
		t.Fatal("expected no card")
	}
	if n := f.reader.scans.Load(); n != 1 {
		t.Errorf("scans = %d, want 1", n)
	}
}

func TestScanner_ReaderErrorCountsAsNoCard(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	f.reader.err.Store(errors.Join(device.ErrDisconnected, errors.New("unplugged")))

	start := time.Now()
	if _, ok := f.scanner.Scan(context.Background(), 50*time.Millisecond); ok {
		t.Fatal("expected no card")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("an erroring reader must not end the window early")
	}
	if f.reader.scans.Load() < 2 {
		t.Error("scanner should keep polling through errors")
	}
}

func TestScanner_CanceledContextStopsWaiting(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	f.scanner.Scan(ctx, 5*time.Second)
	if time.Since(start) > time.Second {
		t.Error("Scan ignored cancellation")
	}
}

func TestScanner_WatchShowsReaderStatus(t *testing.T) {
	f := newFixture(t, defaultEnrollmentConfig())
	handled := make(chan string, 1)
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.scanner.Watch(context.Background(), f.gen, func(_ context.Context, _ *service.Generation, id string) {
			if got := f.display.Snapshot().Reader; got != service.ReaderBusy {
				t.Errorf("reader during handling = %s", got)
			}
			handled <- id
			<-release
		})
	}()

	eventually(t, func() bool { return f.display.Snapshot().Reader == service.ReaderReady })
	f.reader.tap("AA")
	if id := <-handled; id != "AA" {
		t.Errorf("handled %q", id)
	}
	close(release)
	eventually(t, func() bool { return f.display.Snapshot().Reader == service.ReaderReady })

	f.gen.Revoke()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after revocation")
	}
}
