package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/enxitry/enxitry/internal/logging"
)

// Supervisor owns the session lifecycle. Each StartSession revokes the
// previous generation and spawns a fresh card poller and refresher.
type Supervisor struct {
	scanner    *Scanner
	refresher  *Refresher
	attendance *Attendance
	display    *Display
	logger     *slog.Logger

	mu     sync.Mutex
	cur    *Generation
	nextID uint64
	wg     sync.WaitGroup
}

func NewSupervisor(sc *Scanner, rf *Refresher, at *Attendance, display *Display, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		scanner:    sc,
		refresher:  rf,
		attendance: at,
		display:    display,
		logger:     logging.NewComponentLogger(logger, "supervisor"),
	}
}

// StartSession begins a new generation bound to ctx. Loops of the previous
// generation stop at their next check.
func (s *Supervisor) StartSession(ctx context.Context) *Generation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.cur.Revoke()
	}
	s.nextID++
	gen := newGeneration(ctx, s.nextID)
	s.cur = gen

	s.display.Update(func(st *DisplayState) {
		st.Generation = gen.ID
		st.Phase = PhaseIdle
		st.Pending = nil
		st.Countdown = 0
		st.Preview = nil
	})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.scanner.Watch(ctx, gen, s.attendance.HandleScan)
	}()
	go func() {
		defer s.wg.Done()
		s.refresher.Run(ctx, gen)
	}()

	s.logger.Info("session started", slog.Uint64("generation", gen.ID))
	return gen
}

// Current returns the live generation, or nil before the first session.
func (s *Supervisor) Current() *Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Stop revokes the live generation and waits for every loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cur != nil {
		s.cur.Revoke()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
}
