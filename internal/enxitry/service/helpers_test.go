package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/store"
	"github.com/enxitry/enxitry/internal/enxitry/store/memory"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// ── Stub reader ─────────────────────────────────────────────────────────────

type scriptedReader struct {
	taps  chan string
	err   atomic.Value // error
	scans atomic.Int64
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{taps: make(chan string, 16)}
}

func (r *scriptedReader) ScanOnce(ctx context.Context) (string, error) {
	r.scans.Add(1)
	if err, _ := r.err.Load().(error); err != nil {
		return "", err
	}
	select {
	case id := <-r.taps:
		return id, nil
	default:
		return "", device.ErrNoCard
	}
}

func (r *scriptedReader) tap(ids ...string) {
	for _, id := range ids {
		r.taps <- id
	}
}

// ── Stub camera / recognizer ────────────────────────────────────────────────

type stubCamera struct{ frames atomic.Int64 }

func (c *stubCamera) CaptureFrame(context.Context) (device.Frame, error) {
	n := c.frames.Add(1)
	return device.Frame{Data: []byte{byte(n)}, Format: "image/png", CapturedAt: time.Now()}, nil
}

type stubRecognizer struct {
	fn       func(call int64) (types.RecognizedCredential, bool, error)
	delay    time.Duration
	calls    atomic.Int64
	inflight atomic.Int64
	maxSeen  atomic.Int64
}

func (r *stubRecognizer) Recognize(ctx context.Context, _ device.Frame) (types.RecognizedCredential, bool, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	call := r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return types.RecognizedCredential{}, false, ctx.Err()
		}
	}
	if r.fn == nil {
		return types.RecognizedCredential{}, false, nil
	}
	return r.fn(call)
}

func always(id, name string) func(int64) (types.RecognizedCredential, bool, error) {
	return func(int64) (types.RecognizedCredential, bool, error) {
		return types.RecognizedCredential{ExternalID: id, Name: name}, true, nil
	}
}

// ── Recording sinks ─────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu      sync.Mutex
	notices []service.Notice
}

func (n *recordingNotifier) Notify(level service.Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, service.Notice{Level: level, Message: msg})
}

func (n *recordingNotifier) count(level service.Level) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notices {
		if x.Level == level {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type recordingAlerter struct{ alerts atomic.Int64 }

func (a *recordingAlerter) Alert(context.Context, string, string) error {
	a.alerts.Add(1)
	return nil
}

// ── Fixture ─────────────────────────────────────────────────────────────────

var fastPolicy = store.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

type fixture struct {
	backend    *memory.Backend
	dir        *service.Directory
	display    *service.Display
	notifier   *recordingNotifier
	alerter    *recordingAlerter
	reader     *scriptedReader
	camera     *stubCamera
	recognizer *stubRecognizer
	scanner    *service.Scanner
	enrollment *service.Enrollment
	attendance *service.Attendance
	gen        *service.Generation
}

func defaultEnrollmentConfig() service.EnrollmentConfig {
	return service.EnrollmentConfig{
		FrameInterval:     5 * time.Millisecond,
		CaptureTimeout:    time.Second,
		ConfirmTimeout:    300 * time.Millisecond,
		CompletionDisplay: 0,
		MaxRestarts:       3,
	}
}

func newFixture(t *testing.T, cfg service.EnrollmentConfig) *fixture {
	t.Helper()
	logger := logging.NewNop()
	f := &fixture{
		backend:    memory.New(),
		display:    service.NewDisplay(),
		notifier:   &recordingNotifier{},
		alerter:    &recordingAlerter{},
		reader:     newScriptedReader(),
		camera:     &stubCamera{},
		recognizer: &stubRecognizer{},
	}
	f.dir = service.NewDirectory(
		store.NewTable(f.backend, store.PersonSchema("Person"), fastPolicy, logger),
		store.NewTable(f.backend, store.EventSchema("EventLog", time.UTC), fastPolicy, logger),
	)
	f.scanner = service.NewScanner(f.reader, service.ScannerConfig{
		PollInterval: 2 * time.Millisecond,
		PollWindow:   20 * time.Millisecond,
	}, f.display, logger)
	f.enrollment = service.NewEnrollment(cfg, f.camera, f.recognizer, f.scanner, f.dir, f.display, logger)
	f.attendance = service.NewAttendance(f.dir, f.enrollment, f.display, f.notifier, f.alerter, logger)
	f.gen = service.NewGeneration(context.Background(), 1)
	t.Cleanup(f.gen.Revoke)
	return f
}

func (f *fixture) seed(t *testing.T, ps ...types.Person) {
	t.Helper()
	if err := f.dir.SavePersons(context.Background(), ps...); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) persons(t *testing.T) []types.Person {
	t.Helper()
	ps, err := f.dir.Persons(context.Background())
	if err != nil {
		t.Fatalf("persons: %v", err)
	}
	return ps
}

func (f *fixture) actions(t *testing.T) []types.Action {
	t.Helper()
	es, err := f.dir.Events(context.Background())
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	out := make([]types.Action, len(es))
	for i, e := range es {
		out[i] = e.Action
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
