package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks ranges and enumerations and resolves the timezone.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		add("timezone: %w", err)
	} else {
		c.location = loc
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format: unsupported value %q", c.Logging.Format)
	}

	switch c.Store.Backend {
	case "memory", "sqlite":
	case "remote":
		if c.Store.Remote.URL == "" {
			add("store.remote.url: required when store.backend is remote")
		} else if u, err := url.Parse(c.Store.Remote.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			add("store.remote.url: must be an http(s) URL")
		}
	default:
		add("store.backend: unsupported value %q", c.Store.Backend)
	}
	switch c.Store.Remote.Encoding {
	case "json", "protobuf":
	default:
		add("store.remote.encoding: unsupported value %q", c.Store.Remote.Encoding)
	}
	if strings.TrimSpace(c.Store.PersonTable) == "" || strings.TrimSpace(c.Store.EventTable) == "" {
		add("store: person_table and event_table are required")
	}
	if c.Store.PersonTable == c.Store.EventTable {
		add("store: person_table and event_table must differ")
	}
	if c.Store.RetryAttempts < 1 {
		add("store.retry_attempts: must be at least 1")
	}
	if c.Store.RetryMaxBackoffMS < c.Store.RetryBackoffMS {
		add("store.retry_max_backoff_ms: must be >= retry_backoff_ms")
	}

	if c.Reader.PollIntervalMS <= 0 {
		add("reader.poll_interval_ms: must be positive")
	}
	if c.Reader.PollWindowMS < c.Reader.PollIntervalMS {
		add("reader.poll_window_ms: must be >= poll_interval_ms")
	}
	if c.Camera.FrameIntervalMS <= 0 {
		add("camera.frame_interval_ms: must be positive")
	}
	switch c.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		add("camera.rotation: must be 0, 90, 180 or 270")
	}
	if c.Recognizer.IDLength <= 0 {
		add("recognizer.id_length: must be positive")
	}
	if c.Recognizer.NameSeparator == "" {
		add("recognizer.name_separator: required")
	}
	if c.Enrollment.CaptureTimeoutSeconds <= 0 || c.Enrollment.ConfirmTimeoutSeconds <= 0 {
		add("enrollment: capture and confirm timeouts must be positive")
	}
	if c.Refresh.IntervalSeconds <= 0 {
		add("refresh.interval_seconds: must be positive")
	}

	return errors.Join(errs...)
}
