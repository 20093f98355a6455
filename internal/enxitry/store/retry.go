package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/enxitry/enxitry/internal/logging"
)

// RetryPolicy bounds how an operation is retried. Backoff doubles after each
// failed attempt up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// run executes fn until it succeeds, the policy is exhausted, the context
// ends, or fn returns ErrMalformed. The backend is reopened between attempts.
func run(ctx context.Context, b Backend, p RetryPolicy, logger *slog.Logger, table, op string, fn func(ctx context.Context) error) error {
	max := p.attempts()
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrMalformed) {
			return err
		}
		if attempt == max {
			break
		}

		logger.Warn("store operation failed, retrying",
			slog.String("table", table),
			slog.String("op", op),
			slog.Int("attempt", attempt),
			logging.Error(err),
		)

		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if rerr := b.Reopen(ctx); rerr != nil {
			logger.Warn("store reopen failed", slog.String("table", table), logging.Error(rerr))
		}
	}

	logger.Error("store operation exhausted retries",
		slog.String("table", table),
		slog.String("op", op),
		slog.Int("attempts", max),
		logging.Error(err),
	)
	return &UnavailableError{Table: table, Op: op, Attempts: max, Err: err}
}
