package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

type EnrollmentConfig struct {
	FrameInterval     time.Duration // default 100ms
	CaptureTimeout    time.Duration // default 30s
	ConfirmTimeout    time.Duration // default 10s
	CompletionDisplay time.Duration // default 3s
	MaxRestarts       int           // mismatch restarts allowed; 0 disables them
}

func (c *EnrollmentConfig) withDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = 100 * time.Millisecond
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 30 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 10 * time.Second
	}
	if c.CompletionDisplay < 0 {
		c.CompletionDisplay = 0
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
}

// Enrollment binds an unknown card to the credential shown to the camera,
// confirmed by tapping the same card again.
type Enrollment struct {
	cfg        EnrollmentConfig
	camera     device.Camera
	recognizer device.Recognizer
	scanner    *Scanner
	dir        *Directory
	display    *Display
	logger     *slog.Logger
	now        func() time.Time
}

func NewEnrollment(cfg EnrollmentConfig, cam device.Camera, rec device.Recognizer, sc *Scanner, dir *Directory, display *Display, logger *slog.Logger) *Enrollment {
	cfg.withDefaults()
	return &Enrollment{
		cfg:        cfg,
		camera:     cam,
		recognizer: rec,
		scanner:    sc,
		dir:        dir,
		display:    display,
		logger:     logging.NewComponentLogger(logger, "enrollment"),
		now:        time.Now,
	}
}

type recognition struct {
	cred types.RecognizedCredential
	ok   bool
	err  error
}

// Enroll runs capture, confirmation and persistence for cardID. ok is false
// when the flow was abandoned (capture timeout, no confirmation, restarts
// exhausted, or gen revoked); nothing is written in that case. Store writes
// run on ctx, waits on gen.
func (e *Enrollment) Enroll(ctx context.Context, gen *Generation, cardID string) (types.Person, bool, error) {
	defer e.display.Update(func(s *DisplayState) {
		s.Phase = PhaseIdle
		s.Pending = nil
		s.Countdown = 0
		s.Preview = nil
	})

	trigger := cardID
	for restarts := 0; ; restarts++ {
		log := e.logger.With(logging.Card(trigger), slog.Int("restart", restarts))

		cred, ok := e.capture(gen.Context())
		if !ok {
			log.Info("enrollment abandoned: no credential recognized")
			return types.Person{}, false, nil
		}
		log.Info("credential recognized", slog.String("external_id", cred.ExternalID))

		confirmed := e.confirm(gen.Context(), cred)
		switch {
		case confirmed == trigger:
			p, err := e.persist(ctx, gen, trigger, cred)
			if err != nil {
				return types.Person{}, false, err
			}
			return p, true, nil
		case confirmed == "":
			log.Info("enrollment abandoned: not confirmed")
			return types.Person{}, false, nil
		case restarts >= e.cfg.MaxRestarts:
			log.Info("enrollment abandoned: too many mismatches")
			return types.Person{}, false, nil
		default:
			log.Info("confirmation card mismatch, restarting", logging.Card(confirmed))
			trigger = confirmed
		}
	}
}

// capture grabs frames until the recognizer reads a credential or the
// capture timeout passes. At most one recognition runs at a time.
func (e *Enrollment) capture(ctx context.Context) (types.RecognizedCredential, bool) {
	e.display.Update(func(s *DisplayState) {
		s.Phase = PhaseCapturing
		s.Pending = nil
		s.Countdown = 0
	})

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CaptureTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.FrameInterval)
	defer ticker.Stop()

	var inflight <-chan recognition
	for {
		select {
		case <-ctx.Done():
			return types.RecognizedCredential{}, false
		case res := <-inflight:
			inflight = nil
			if res.err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("recognition failed", logging.Error(res.err))
				}
				continue
			}
			if res.ok {
				return res.cred, true
			}
		case <-ticker.C:
			frame, err := e.camera.CaptureFrame(ctx)
			if err != nil {
				if !errors.Is(err, device.ErrNoFrame) && ctx.Err() == nil {
					e.logger.Debug("frame capture failed", logging.Error(err))
				}
				continue
			}
			e.display.Update(func(s *DisplayState) { s.Preview = &frame })
			if inflight != nil {
				continue
			}
			ch := make(chan recognition, 1)
			inflight = ch
			go func() {
				cred, ok, err := e.recognizer.Recognize(ctx, frame)
				ch <- recognition{cred: cred, ok: ok, err: err}
			}()
		}
	}
}

// confirm waits for a tap while counting down once per second. It returns
// the tapped card or "" on timeout.
func (e *Enrollment) confirm(ctx context.Context, cred types.RecognizedCredential) string {
	seconds := int((e.cfg.ConfirmTimeout + time.Second - 1) / time.Second)
	e.display.Update(func(s *DisplayState) {
		s.Phase = PhaseConfirmPending
		s.Pending = &cred
		s.Countdown = seconds
		s.Preview = nil
		s.Reader = ReaderReady
	})
	defer e.display.setReader(ReaderBusy)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	result := make(chan string, 1)
	go func() {
		id, _ := e.scanner.Scan(ctx, e.cfg.ConfirmTimeout)
		result <- id
	}()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case id := <-result:
			return id
		case <-tick.C:
			seconds = max(seconds-1, 0)
			left := seconds
			e.display.Update(func(s *DisplayState) { s.Countdown = left })
		}
	}
}

// persist upserts the person as entered, then appends REGISTER and ENTER. If
// the log append fails the person row is put back the way it was.
func (e *Enrollment) persist(ctx context.Context, gen *Generation, cardID string, cred types.RecognizedCredential) (types.Person, error) {
	start := e.now()
	e.display.Update(func(s *DisplayState) { s.Phase = PhasePersisting })

	all, err := e.dir.Persons(ctx)
	if err != nil {
		return types.Person{}, err
	}
	// A restart can land on a card that is already bound, even to the person
	// just recognized. Registering it again would log a second ENTER.
	if bound, ok := byCard(all, cardID); ok {
		return types.Person{}, fmt.Errorf("%w: %s", ErrCardAlreadyBound, bound.ExternalID)
	}
	prev, existed := byExternalID(all, cred.ExternalID)

	p := types.Person{
		ExternalID: cred.ExternalID,
		CardID:     cardID,
		Name:       cred.Name,
		Status:     types.StatusEntered,
	}
	if err := e.dir.SavePersons(ctx, p); err != nil {
		return types.Person{}, err
	}

	at := e.now()
	err = e.dir.AppendEvents(ctx,
		types.NewEventLogEntry(p.ExternalID, types.ActionRegister, at),
		types.NewEventLogEntry(p.ExternalID, types.ActionEnter, at),
	)
	if err != nil {
		e.compensate(ctx, p, prev, existed)
		return types.Person{}, err
	}

	e.logger.Info("person enrolled", slog.String("external_id", p.ExternalID), logging.Card(cardID))
	e.display.Update(func(s *DisplayState) {
		s.Phase = PhaseCompleted
		s.Pending = &cred
		s.Occupancy = s.Occupancy.With(types.Occupant{ExternalID: p.ExternalID, Name: p.Name})
	})

	if hold := e.cfg.CompletionDisplay - e.now().Sub(start); hold > 0 {
		t := time.NewTimer(hold)
		select {
		case <-t.C:
		case <-gen.Done():
			t.Stop()
		}
	}
	return p, nil
}

func (e *Enrollment) compensate(ctx context.Context, p, prev types.Person, existed bool) {
	var err error
	if existed {
		err = e.dir.SavePersons(ctx, prev)
	} else {
		err = e.dir.DeletePerson(ctx, p.ExternalID)
	}
	if err != nil {
		e.logger.Error("enrollment rollback failed; person row may be stale",
			slog.String("external_id", p.ExternalID), logging.Error(err))
		return
	}
	e.logger.Warn("enrollment rolled back", slog.String("external_id", p.ExternalID))
}
