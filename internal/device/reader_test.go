package device_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/enxitry/enxitry/internal/device"
	"github.com/enxitry/enxitry/internal/logging"
)

func TestNormalizeCardID(t *testing.T) {
	cases := map[string]string{
		"04a1b2c3":     "04 A1 B2 C3",
		"04:A1:B2:C3":  "04 A1 B2 C3",
		" 01 2e 4f 5a": "01 2E 4F 5A",
		"01-02\r":      "01 02",
	}
	for in, want := range cases {
		got, err := device.NormalizeCardID(in)
		if err != nil || got != want {
			t.Errorf("NormalizeCardID(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "ABC", "zz", "04 A1 B"} {
		if _, err := device.NormalizeCardID(bad); !errors.Is(err, device.ErrInvalidCardID) {
			t.Errorf("NormalizeCardID(%q) err = %v", bad, err)
		}
	}
}

// waitFor polls ScanOnce until it stops returning ErrNoCard.
func waitFor(t *testing.T, r device.Reader) (string, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		id, err := r.ScanOnce(context.Background())
		if !errors.Is(err, device.ErrNoCard) {
			return id, err
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for reader")
	return "", nil
}

func TestLineReader_DeliversTaps(t *testing.T) {
	pr, pw := io.Pipe()
	lr := device.NewLineReaderFrom(pr, logging.NewNop())
	defer lr.Close()

	if _, err := lr.ScanOnce(context.Background()); !errors.Is(err, device.ErrNoCard) {
		t.Fatalf("expected ErrNoCard before any tap, got %v", err)
	}

	go pw.Write([]byte("04a1b2c3\n"))
	id, err := waitFor(t, lr)
	if err != nil || id != "04 A1 B2 C3" {
		t.Fatalf("got %q, %v", id, err)
	}
	if _, err := lr.ScanOnce(context.Background()); !errors.Is(err, device.ErrNoCard) {
		t.Errorf("a tap must be consumed once, got %v", err)
	}
}

func TestLineReader_KeepsLatestTapOnly(t *testing.T) {
	pr, pw := io.Pipe()
	lr := device.NewLineReaderFrom(pr, logging.NewNop())
	defer lr.Close()

	if _, err := pw.Write([]byte("0101\nnot-hex\n0202\n")); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	// Let the read loop drain the stream before polling.
	time.Sleep(100 * time.Millisecond)
	id, err := waitFor(t, lr)
	if err != nil || id != "02 02" {
		t.Fatalf("expected latest tap 02 02, got %q, %v", id, err)
	}
}

func TestLineReader_EndOfStreamIsTransportError(t *testing.T) {
	pr, pw := io.Pipe()
	lr := device.NewLineReaderFrom(pr, logging.NewNop())
	defer lr.Close()
	pw.Close()

	_, err := waitFor(t, lr)
	if !errors.Is(err, device.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}
