// Package config loads the kiosk configuration from TOML with ENXITRY_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"
)

type Paths struct {
	DataDir string `toml:"data_dir"`
}

type Logging struct {
	Dir           string `toml:"dir"`
	Level         string `toml:"level"`
	Format        string `toml:"format"`
	RetentionDays int    `toml:"retention_days"`
}

type SQLite struct {
	Path string `toml:"path"`
}

type Remote struct {
	URL            string `toml:"url"`
	Encoding       string `toml:"encoding"` // "json" | "protobuf"
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Token          string `toml:"token"`
}

type Store struct {
	Backend           string `toml:"backend"` // "memory" | "sqlite" | "remote"
	PersonTable       string `toml:"person_table"`
	EventTable        string `toml:"event_table"`
	RetryAttempts     int    `toml:"retry_attempts"`
	RetryBackoffMS    int    `toml:"retry_backoff_ms"`
	RetryMaxBackoffMS int    `toml:"retry_max_backoff_ms"`
	SQLite            SQLite `toml:"sqlite"`
	Remote            Remote `toml:"remote"`
}

type Reader struct {
	Device         string `toml:"device"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	PollWindowMS   int    `toml:"poll_window_ms"`
}

type Camera struct {
	Source          string `toml:"source"`
	FrameIntervalMS int    `toml:"frame_interval_ms"`
	Rotation        int    `toml:"rotation"`
}

type Recognizer struct {
	TesseractPath string `toml:"tesseract_path"`
	Languages     string `toml:"languages"`
	IDLength      int    `toml:"id_length"`
	NameSeparator string `toml:"name_separator"`
}

type Enrollment struct {
	CaptureTimeoutSeconds    int `toml:"capture_timeout_seconds"`
	ConfirmTimeoutSeconds    int `toml:"confirm_timeout_seconds"`
	CompletionDisplaySeconds int `toml:"completion_display_seconds"`
	MaxRestarts              int `toml:"max_restarts"`
}

type Refresh struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type API struct {
	Bind string `toml:"bind"`
}

type Tabled struct {
	Bind     string `toml:"bind"`
	GRPCBind string `toml:"grpc_bind"`
	DBPath   string `toml:"db_path"`
	Token    string `toml:"token"`
}

type Webhook struct {
	SlackURL       string `toml:"slack_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Config struct {
	Timezone   string     `toml:"timezone"`
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Store      Store      `toml:"store"`
	Reader     Reader     `toml:"reader"`
	Camera     Camera     `toml:"camera"`
	Recognizer Recognizer `toml:"recognizer"`
	Enrollment Enrollment `toml:"enrollment"`
	Refresh    Refresh    `toml:"refresh"`
	API        API        `toml:"api"`
	Tabled     Tabled     `toml:"tabled"`
	Webhook    Webhook    `toml:"webhook"`

	location *time.Location
}

func Default() Config {
	return Config{
		Timezone: "Asia/Tokyo",
		Paths:    Paths{DataDir: "~/.enxitry"},
		Logging: Logging{
			Dir:           "~/.enxitry/log",
			Level:         "info",
			Format:        "console",
			RetentionDays: 30,
		},
		Store: Store{
			Backend:           "sqlite",
			PersonTable:       "Person",
			EventTable:        "EventLog",
			RetryAttempts:     3,
			RetryBackoffMS:    200,
			RetryMaxBackoffMS: 2000,
			SQLite:            SQLite{Path: "~/.enxitry/enxitry.db"},
			Remote:            Remote{Encoding: "json", TimeoutSeconds: 10},
		},
		Reader:     Reader{Device: "/dev/ttyACM0", PollIntervalMS: 100, PollWindowMS: 1000},
		Camera:     Camera{FrameIntervalMS: 100},
		Recognizer: Recognizer{TesseractPath: "tesseract", Languages: "eng", IDLength: 9, NameSeparator: ","},
		Enrollment: Enrollment{
			CaptureTimeoutSeconds:    30,
			ConfirmTimeoutSeconds:    10,
			CompletionDisplaySeconds: 3,
			MaxRestarts:              3,
		},
		Refresh: Refresh{IntervalSeconds: 15},
		API:     API{Bind: "127.0.0.1:7410"},
		Tabled: Tabled{
			Bind:     ":7420",
			GRPCBind: ":7421",
			DBPath:   "~/.enxitry/tabled.db",
		},
		Webhook: Webhook{TimeoutSeconds: 10},
	}
}

// Load reads path (or the default locations when empty), applies ENXITRY_
// environment overrides, and validates the result. The returned string is
// the file that was read, if any.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}
	if exists {
		f, err := os.Open(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config: %w", err)
		}
	} else {
		resolved = ""
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) != "" {
		p, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(p); err != nil {
			return "", false, fmt.Errorf("config file: %w", err)
		}
		return p, true, nil
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "enxitry", "config.toml"))
	}
	candidates = append(candidates, "enxitry.toml")
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			abs, err := filepath.Abs(c)
			if err != nil {
				return "", false, err
			}
			return abs, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %s: %w", c, err)
		}
	}
	return "", false, nil
}

func (c *Config) normalize() error {
	var err error
	for _, p := range []*string{&c.Paths.DataDir, &c.Logging.Dir, &c.Store.SQLite.Path, &c.Tabled.DBPath} {
		if *p, err = expandPath(strings.TrimSpace(*p)); err != nil {
			return err
		}
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Store.Remote.Encoding = strings.ToLower(strings.TrimSpace(c.Store.Remote.Encoding))
	c.Store.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Store.Remote.URL), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Location resolves the configured timezone. Validate populates it.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.Local
		}
		c.location = loc
	}
	return c.location
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Logging.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (r Reader) PollInterval() time.Duration { return ms(r.PollIntervalMS) }
func (r Reader) PollWindow() time.Duration   { return ms(r.PollWindowMS) }

func (c Camera) FrameInterval() time.Duration { return ms(c.FrameIntervalMS) }

func (e Enrollment) CaptureTimeout() time.Duration    { return secs(e.CaptureTimeoutSeconds) }
func (e Enrollment) ConfirmTimeout() time.Duration    { return secs(e.ConfirmTimeoutSeconds) }
func (e Enrollment) CompletionDisplay() time.Duration { return secs(e.CompletionDisplaySeconds) }

func (r Refresh) Interval() time.Duration { return secs(r.IntervalSeconds) }

func (r Remote) Timeout() time.Duration  { return secs(r.TimeoutSeconds) }
func (w Webhook) Timeout() time.Duration { return secs(w.TimeoutSeconds) }

func (s Store) RetryBackoff() time.Duration    { return ms(s.RetryBackoffMS) }
func (s Store) RetryMaxBackoff() time.Duration { return ms(s.RetryMaxBackoffMS) }

func ms(n int) time.Duration   { return time.Duration(n) * time.Millisecond }
func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return abs, nil
}
