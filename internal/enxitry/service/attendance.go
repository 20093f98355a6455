package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/store"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// ErrEnrollmentBusy is reported when a tap would start a second enrollment
// in the same generation.
var ErrEnrollmentBusy = errors.New("enrollment already in progress")

// Enroller runs the enrollment flow for an unknown card.
type Enroller interface {
	Enroll(ctx context.Context, gen *Generation, cardID string) (types.Person, bool, error)
}

// Attendance toggles people in and out on every tap and hands unknown cards
// to the Enroller.
type Attendance struct {
	dir      *Directory
	enroller Enroller
	display  *Display
	notifier Notifier
	alerter  Alerter
	logger   *slog.Logger
	now      func() time.Time
}

func NewAttendance(dir *Directory, enroller Enroller, display *Display, notifier Notifier, alerter Alerter, logger *slog.Logger) *Attendance {
	if alerter == nil {
		alerter = nopAlerter{}
	}
	return &Attendance{
		dir:      dir,
		enroller: enroller,
		display:  display,
		notifier: notifier,
		alerter:  alerter,
		logger:   logging.NewComponentLogger(logger, "attendance"),
		now:      time.Now,
	}
}

// HandleScan processes one tap. Failures end in exactly one error notice and
// never stop the caller's loop.
func (a *Attendance) HandleScan(ctx context.Context, gen *Generation, cardID string) {
	person, found, err := a.dir.FindByCard(ctx, cardID)
	if err != nil {
		a.fail(ctx, "Could not look up the card. Please try again.", err)
		return
	}
	if !found {
		a.enroll(ctx, gen, cardID)
		return
	}
	a.toggle(ctx, person)
}

func (a *Attendance) enroll(ctx context.Context, gen *Generation, cardID string) {
	if !gen.beginEnrollment() {
		a.logger.Warn("tap ignored", logging.Card(cardID), logging.Error(ErrEnrollmentBusy))
		return
	}
	defer gen.endEnrollment()

	p, ok, err := a.enroller.Enroll(ctx, gen, cardID)
	switch {
	case errors.Is(err, ErrCardAlreadyBound):
		a.fail(ctx, "This card is already registered to someone else.", err)
	case err != nil:
		a.fail(ctx, "Registration failed. Please try again.", err)
	case ok:
		a.notifier.Notify(LevelSuccess, fmt.Sprintf("Registered. Welcome, %s!", p.Name))
	}
}

// toggle updates the on-screen view first, then writes the person and the
// log entry. A failed write leaves the view ahead of the store until the
// next refresh. If the log append fails the person row is put back.
func (a *Attendance) toggle(ctx context.Context, p types.Person) {
	prev := p
	p.Status = p.Status.Toggled()
	action := types.ActionFor(p.Status)

	a.display.Update(func(s *DisplayState) {
		if p.Status == types.StatusEntered {
			s.Occupancy = s.Occupancy.With(types.Occupant{ExternalID: p.ExternalID, Name: p.Name})
		} else {
			s.Occupancy = s.Occupancy.Without(p.ExternalID)
		}
	})
	if p.Status == types.StatusEntered {
		a.notifier.Notify(LevelSuccess, fmt.Sprintf("Welcome, %s!", p.Name))
	} else {
		a.notifier.Notify(LevelInfo, fmt.Sprintf("See you, %s!", p.Name))
	}

	if err := a.dir.SavePersons(ctx, p); err != nil {
		a.fail(ctx, "Could not save your attendance. Please tell staff.", err)
		return
	}
	if err := a.dir.AppendEvents(ctx, types.NewEventLogEntry(p.ExternalID, action, a.now())); err != nil {
		if rerr := a.dir.SavePersons(ctx, prev); rerr != nil {
			a.logger.Error("attendance rollback failed; person row may be stale",
				slog.String("external_id", p.ExternalID), logging.Error(rerr))
		}
		a.fail(ctx, "Could not save your attendance. Please tell staff.", err)
		return
	}
	a.logger.Info("attendance recorded",
		slog.String("external_id", p.ExternalID),
		slog.String("action", string(action)),
	)
}

func (a *Attendance) fail(ctx context.Context, message string, err error) {
	a.logger.Error(message, logging.Error(err))
	a.notifier.Notify(LevelError, message)
	if !errors.Is(err, store.ErrUnavailable) {
		return
	}
	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if aerr := a.alerter.Alert(actx, "Attendance store unavailable", err.Error()); aerr != nil {
			a.logger.Warn("alert delivery failed", logging.Error(aerr))
		}
	}()
}
