package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

// Refresher periodically rebuilds the occupancy view from the Person table.
// A failed fetch keeps the previous view.
type Refresher struct {
	dir      *Directory
	display  *Display
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRefresher(dir *Directory, display *Display, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Refresher{
		dir:      dir,
		display:  display,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "refresher"),
		now:      time.Now,
	}
}

// Run refreshes immediately, then on every interval until gen is revoked
// or ctx ends.
func (r *Refresher) Run(ctx context.Context, gen *Generation) {
	r.logger.Info("occupancy refresher started",
		slog.Uint64("generation", gen.ID),
		slog.Duration("interval", r.interval),
	)
	defer r.logger.Info("occupancy refresher stopped", slog.Uint64("generation", gen.ID))

	_ = r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gen.Done():
			return
		case <-ticker.C:
			if gen.Revoked() {
				return
			}
			_ = r.Refresh(ctx)
		}
	}
}

// Refresh fetches all persons and swaps in the entered ones.
func (r *Refresher) Refresh(ctx context.Context) error {
	persons, err := r.dir.Persons(ctx)
	if err != nil {
		r.logger.Warn("occupancy refresh failed; keeping previous view", logging.Error(err))
		return err
	}
	view := types.ProjectOccupancy(persons, r.now())
	r.display.Update(func(s *DisplayState) { s.Occupancy = view })
	r.logger.Debug("occupancy refreshed", slog.Int("occupants", view.Len()))
	return nil
}
