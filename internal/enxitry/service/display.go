package service

import (
	"sync"
	"sync/atomic"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/types"
)

type ReaderStatus string

const (
	ReaderReady ReaderStatus = "READY"
	ReaderBusy  ReaderStatus = "BUSY"
)

// Phase is the enrollment dialog currently on screen.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseCapturing      Phase = "capturing"
	PhaseConfirmPending Phase = "confirm_pending"
	PhasePersisting     Phase = "persisting"
	PhaseCompleted      Phase = "completed"
)

// DisplayState is everything the kiosk screen shows. Values handed out by
// Display are never mutated afterwards.
type DisplayState struct {
	Version    uint64
	Generation uint64
	Reader     ReaderStatus
	Phase      Phase
	Pending    *types.RecognizedCredential
	Countdown  int
	Preview    *device.Frame
	Occupancy  types.OccupancyView
}

// Display holds the current DisplayState behind an atomic pointer. Writers
// copy, modify, and swap under a mutex; readers never block.
type Display struct {
	cur atomic.Pointer[DisplayState]

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewDisplay() *Display {
	d := &Display{subs: make(map[chan struct{}]struct{})}
	d.cur.Store(&DisplayState{Reader: ReaderBusy, Phase: PhaseIdle})
	return d
}

// Snapshot returns the current state.
func (d *Display) Snapshot() DisplayState {
	return *d.cur.Load()
}

// Update applies fn to a copy of the current state and publishes it.
func (d *Display) Update(fn func(s *DisplayState)) DisplayState {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := *d.cur.Load()
	fn(&next)
	next.Version++
	d.cur.Store(&next)

	for ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return next
}

// Subscribe returns a channel that receives a signal after updates. Signals
// coalesce; call Snapshot to read the state. cancel releases the channel.
func (d *Display) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch, func() {
		d.mu.Lock()
		delete(d.subs, ch)
		d.mu.Unlock()
	}
}

func (d *Display) setReader(st ReaderStatus) {
	if d.cur.Load().Reader == st {
		return
	}
	d.Update(func(s *DisplayState) { s.Reader = st })
}
