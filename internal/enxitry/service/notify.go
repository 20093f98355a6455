package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/enxitry/enxitry/internal/logging"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier receives user-facing messages. Notify must not block.
type Notifier interface {
	Notify(level Level, message string)
}

// Alerter forwards fatal conditions to operators, e.g. a chat webhook.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

type Notice struct {
	Seq     uint64    `json:"seq"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NoticeBoard keeps the most recent notices in a ring for the screen and
// the status API.
type NoticeBoard struct {
	mu     sync.Mutex
	buf    []Notice
	size   int
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

func NewNoticeBoard(size int, logger *slog.Logger) *NoticeBoard {
	if size <= 0 {
		size = 32
	}
	return &NoticeBoard{
		size:   size,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "notices"),
	}
}

func (b *NoticeBoard) Notify(level Level, message string) {
	b.mu.Lock()
	b.seq++
	n := Notice{Seq: b.seq, Level: level, Message: message, At: b.now()}
	b.buf = append(b.buf, n)
	if len(b.buf) > b.size {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.size:]...)
	}
	b.mu.Unlock()

	b.logger.Info("notice", slog.String("level", string(level)), slog.String("message", message))
}

// Since returns retained notices with Seq > after, oldest first.
func (b *NoticeBoard) Since(after uint64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Notice
	for _, n := range b.buf {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

type nopAlerter struct{}

func (nopAlerter) Alert(context.Context, string, string) error { return nil }
