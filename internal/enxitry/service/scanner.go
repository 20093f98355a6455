package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/logging"
)

// Scanner polls the reader at a fixed interval.
type Scanner struct {
	reader   device.Reader
	interval time.Duration
	window   time.Duration
	display  *Display
	logger   *slog.Logger

	mu      sync.Mutex
	lastErr string
}

type ScannerConfig struct {
	PollInterval time.Duration // default 100ms
	PollWindow   time.Duration // default 1s
}

func NewScanner(r device.Reader, cfg ScannerConfig, display *Display, logger *slog.Logger) *Scanner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.PollWindow <= 0 {
		cfg.PollWindow = time.Second
	}
	return &Scanner{
		reader:   r,
		interval: cfg.PollInterval,
		window:   cfg.PollWindow,
		display:  display,
		logger:   logging.NewComponentLogger(logger, "scanner"),
	}
}

// Scan returns the first card seen within timeout. timeout <= 0 polls once.
// Reader errors count as no card; transport errors are logged.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return "", false
		}
		if id, ok := s.scanOnce(ctx); ok {
			return id, true
		}
		if timeout <= 0 || !time.Now().Add(s.interval).Before(deadline) {
			return "", false
		}
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false
		case <-t.C:
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) (string, bool) {
	id, err := s.reader.ScanOnce(ctx)
	switch {
	case err == nil && id != "":
		s.mu.Lock()
		s.lastErr = ""
		s.mu.Unlock()
		return id, true
	case err == nil, errors.Is(err, device.ErrNoCard), ctx.Err() != nil:
		return "", false
	}
	// Log once per distinct failure so a dead reader does not flood the log.
	s.mu.Lock()
	repeated := err.Error() == s.lastErr
	s.lastErr = err.Error()
	s.mu.Unlock()
	if !repeated {
		s.logger.Warn("card reader error", logging.Error(err))
	}
	return "", false
}

// Watch polls in windows until gen is revoked or ctx ends, passing every card
// to handle with the reader shown as BUSY. handle runs on ctx, so it completes
// even if gen is revoked meanwhile.
func (s *Scanner) Watch(ctx context.Context, gen *Generation, handle func(ctx context.Context, gen *Generation, cardID string)) {
	s.logger.Info("card poller started", slog.Uint64("generation", gen.ID))
	defer s.logger.Info("card poller stopped", slog.Uint64("generation", gen.ID))

	for {
		if gen.Revoked() || ctx.Err() != nil {
			return
		}
		s.display.setReader(ReaderReady)
		id, ok := s.Scan(gen.Context(), s.window)
		if !ok {
			continue
		}
		s.display.setReader(ReaderBusy)
		s.logger.Info("card scanned", logging.Card(id))
		handle(ctx, gen, id)
	}
}
