package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// ── Defaults ──

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Location().String() != "Asia/Tokyo" {
		t.Errorf("location = %s", cfg.Location())
	}
	if got := cfg.Reader.PollInterval(); got != 100*time.Millisecond {
		t.Errorf("poll interval = %v", got)
	}
	if got := cfg.Enrollment.CaptureTimeout(); got != 30*time.Second {
		t.Errorf("capture timeout = %v", got)
	}
	if cfg.Store.RetryAttempts != 3 {
		t.Errorf("retry attempts = %d", cfg.Store.RetryAttempts)
	}
}

// ── Env overlay ──

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	cfg.applyEnv(envMap(map[string]string{
		"ENXITRY_STORE_BACKEND":            "memory",
		"ENXITRY_REFRESH_INTERVAL_SECONDS": "5",
		"ENXITRY_READER_POLL_INTERVAL_MS":  "not-a-number",
		"ENXITRY_ENROLLMENT_MAX_RESTARTS":  "-1",
		"ENXITRY_TIMEZONE":                 "   ",
	}))

	if cfg.Store.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Refresh.IntervalSeconds != 5 {
		t.Errorf("refresh interval = %d", cfg.Refresh.IntervalSeconds)
	}
	if cfg.Reader.PollIntervalMS != 100 {
		t.Errorf("malformed int should keep default, got %d", cfg.Reader.PollIntervalMS)
	}
	if cfg.Enrollment.MaxRestarts != 3 {
		t.Errorf("negative int should keep default, got %d", cfg.Enrollment.MaxRestarts)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("blank string should keep default, got %q", cfg.Timezone)
	}
}

// ── Load ──

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enxitry.toml")
	body := `
timezone = "UTC"

[store]
backend = "remote"

[store.remote]
url = "http://tabled.local:7420/"
encoding = "protobuf"

[enrollment]
max_restarts = 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENXITRY_ENROLLMENT_MAX_RESTARTS", "2")

	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q", resolved)
	}
	if cfg.Store.Remote.URL != "http://tabled.local:7420" {
		t.Errorf("remote url = %q", cfg.Store.Remote.URL)
	}
	if cfg.Store.Remote.Encoding != "protobuf" {
		t.Errorf("encoding = %q", cfg.Store.Remote.Encoding)
	}
	if cfg.Enrollment.MaxRestarts != 2 {
		t.Errorf("env should win over file, got %d", cfg.Enrollment.MaxRestarts)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("location = %v", cfg.Location())
	}
	if cfg.Reader.Device != "/dev/ttyACM0" {
		t.Errorf("unset keys should keep defaults, got %q", cfg.Reader.Device)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

// ── Validate ──

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "remote"
	cfg.Camera.Rotation = 45
	cfg.Timezone = "Mars/Olympus"
	cfg.Store.RetryAttempts = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.remote.url", "camera.rotation", "timezone", "store.retry_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
