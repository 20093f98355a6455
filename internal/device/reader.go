// Package device holds the hardware capabilities the kiosk depends on: the
// card reader, the camera and the text recognizer.
package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/enxitry/enxitry/internal/logging"
)

var (
	// ErrNoCard means no card is on the reader right now.
	ErrNoCard = errors.New("no card present")
	// ErrDisconnected means the reader transport is gone until Reopen.
	ErrDisconnected = errors.New("reader disconnected")
	// ErrInvalidCardID is returned for ids that are not hex byte strings.
	ErrInvalidCardID = errors.New("invalid card id")
)

// Reader polls a contactless card reader.
type Reader interface {
	// ScanOnce returns the id of the card currently presented, or ErrNoCard.
	ScanOnce(ctx context.Context) (string, error)
}

// NormalizeCardID turns "04:a1:b2", "04A1B2" or "04 a1 b2" into "04 A1 B2".
func NormalizeCardID(raw string) (string, error) {
	var hex []rune
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			hex = append(hex, r)
		case r == ' ' || r == ':' || r == '-' || r == '\t' || r == '\r':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidCardID, raw)
		}
	}
	if len(hex) == 0 || len(hex)%2 != 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCardID, raw)
	}
	var b strings.Builder
	for i := 0; i < len(hex); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(hex[i : i+2]))
	}
	return b.String(), nil
}

// LineReader reads newline-terminated card ids from a character device,
// FIFO or stdin, as produced by keyboard-wedge and serial NFC readers. Only
// the most recent unread tap is kept.
type LineReader struct {
	path   string
	open   func(path string) (io.ReadCloser, error)
	logger *slog.Logger

	latest chan string

	mu      sync.Mutex
	src     io.ReadCloser
	err     error
	running bool
	closed  bool
}

// NewLineReader starts reading path. "-" reads stdin.
func NewLineReader(path string, logger *slog.Logger) *LineReader {
	return newLineReader(path, openSource, logger)
}

// NewLineReaderFrom reads taps from an already open stream. Reopen is a no-op
// once the stream ends.
func NewLineReaderFrom(r io.ReadCloser, logger *slog.Logger) *LineReader {
	used := false
	return newLineReader("stream", func(string) (io.ReadCloser, error) {
		if used {
			return nil, io.EOF
		}
		used = true
		return r, nil
	}, logger)
}

func newLineReader(path string, open func(string) (io.ReadCloser, error), logger *slog.Logger) *LineReader {
	lr := &LineReader{
		path:   path,
		open:   open,
		logger: logging.NewComponentLogger(logger, "reader").With(slog.String("device", path)),
		latest: make(chan string, 1),
	}
	lr.start()
	return lr
}

func openSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.OpenFile(path, os.O_RDONLY, 0)
}

func (lr *LineReader) ScanOnce(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case id := <-lr.latest:
		return id, nil
	default:
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.err != nil {
		return "", lr.err
	}
	return "", ErrNoCard
}

// Reopen re-attaches to the device after it was unplugged.
func (lr *LineReader) Reopen() {
	lr.start()
}

func (lr *LineReader) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.closed = true
	if lr.src != nil {
		err := lr.src.Close()
		lr.src = nil
		return err
	}
	return nil
}

func (lr *LineReader) start() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.closed || lr.running {
		return
	}
	lr.running = true
	lr.err = nil
	// Opening a FIFO blocks until a writer appears.
	go lr.readLoop()
}

func (lr *LineReader) readLoop() {
	src, err := lr.open(lr.path)
	if err != nil {
		lr.fail(fmt.Errorf("%w: %v", ErrDisconnected, err))
		return
	}

	lr.mu.Lock()
	if lr.closed {
		lr.running = false
		lr.mu.Unlock()
		_ = src.Close()
		return
	}
	lr.src = src
	lr.mu.Unlock()

	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, err := NormalizeCardID(line)
		if err != nil {
			lr.logger.Warn("ignoring unreadable tap", logging.Error(err))
			continue
		}
		lr.push(id)
	}

	err = sc.Err()
	if err == nil {
		err = io.EOF
	}
	lr.mu.Lock()
	if lr.src != nil {
		_ = lr.src.Close()
		lr.src = nil
	}
	lr.mu.Unlock()
	lr.fail(fmt.Errorf("%w: %v", ErrDisconnected, err))
}

func (lr *LineReader) push(id string) {
	for {
		select {
		case lr.latest <- id:
			return
		default:
		}
		select {
		case <-lr.latest:
		default:
		}
	}
}

func (lr *LineReader) fail(err error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.running = false
	if lr.closed {
		return
	}
	lr.err = err
	lr.logger.Warn("reader unavailable", logging.Error(err))
}
