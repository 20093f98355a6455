package logging

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/zeebo/blake3"
)

const (
	FieldComponent = "component"
	FieldCard      = "card"
)

// Error wraps err as the conventional "error" attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Card logs a short BLAKE3 fingerprint of a card id. Raw card ids are
// bearer credentials and never go to the log.
func Card(cardID string) slog.Attr {
	return slog.String(FieldCard, Fingerprint(cardID))
}

// Fingerprint returns the first 6 bytes of the card id's BLAKE3 digest in hex.
func Fingerprint(cardID string) string {
	if cardID == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(cardID))
	return hex.EncodeToString(sum[:6])
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component attribute. A nil logger
// yields a no-op base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}

// NoopHandler drops all records.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }
func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler        { return NoopHandler{} }
func (NoopHandler) WithGroup(string) slog.Handler             { return NoopHandler{} }
