package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoFrame means no new frame is ready yet.
var ErrNoFrame = errors.New("no frame available")

// Frame is one still image from the camera.
type Frame struct {
	Data       []byte
	Format     string // MIME type
	CapturedAt time.Time
}

type Camera interface {
	CaptureFrame(ctx context.Context) (Frame, error)
}

// SnapshotCamera pulls stills from an HTTP snapshot endpoint or from a file
// that an external capture process keeps overwriting.
type SnapshotCamera struct {
	source string
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	lastMod time.Time
	lastLen int64
}

func NewSnapshotCamera(source string) *SnapshotCamera {
	return &SnapshotCamera{
		source: strings.TrimSpace(source),
		client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
	}
}

func (c *SnapshotCamera) CaptureFrame(ctx context.Context) (Frame, error) {
	if c.source == "" {
		return Frame{}, ErrNoFrame
	}
	if strings.HasPrefix(c.source, "http://") || strings.HasPrefix(c.source, "https://") {
		return c.fetch(ctx)
	}
	return c.readFile()
}

func (c *SnapshotCamera) fetch(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source, nil)
	if err != nil {
		return Frame{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return Frame{}, ErrNoFrame
	}
	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("snapshot: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot: %w", err)
	}
	return c.frame(data), nil
}

func (c *SnapshotCamera) readFile() (Frame, error) {
	info, err := os.Stat(c.source)
	if errors.Is(err, os.ErrNotExist) {
		return Frame{}, ErrNoFrame
	}
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if info.ModTime().Equal(c.lastMod) && info.Size() == c.lastLen {
		return Frame{}, ErrNoFrame
	}
	data, err := os.ReadFile(c.source)
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}
	c.lastMod, c.lastLen = info.ModTime(), info.Size()
	return c.frame(data), nil
}

func (c *SnapshotCamera) frame(data []byte) Frame {
	return Frame{Data: data, Format: http.DetectContentType(data), CapturedAt: c.now()}
}

// Rotate turns f clockwise by degrees (0, 90, 180 or 270) and re-encodes it
// as PNG. A zero rotation returns f unchanged.
func Rotate(f Frame, degrees int) (Frame, error) {
	if degrees == 0 {
		return f, nil
	}
	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return Frame{}, fmt.Errorf("rotate: decode: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	switch degrees {
	case 90, 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	default:
		return Frame{}, fmt.Errorf("rotate: unsupported angle %d", degrees)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := rgba.RGBAAt(x, y)
			switch degrees {
			case 90:
				dst.SetRGBA(h-1-y, x, px)
			case 180:
				dst.SetRGBA(w-1-x, h-1-y, px)
			case 270:
				dst.SetRGBA(y, w-1-x, px)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Frame{}, fmt.Errorf("rotate: encode: %w", err)
	}
	return Frame{Data: buf.Bytes(), Format: "image/png", CapturedAt: f.CapturedAt}, nil
}
