package config

import (
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override, e.g. ENXITRY_STORE_BACKEND.
const EnvPrefix = "ENXITRY_"

type lookupFunc func(key string) (string, bool)

// applyEnv overlays ENXITRY_* variables. Environment values win over the file.
func (c *Config) applyEnv(lookup lookupFunc) {
	strs := map[string]*string{
		"TIMEZONE":                  &c.Timezone,
		"PATHS_DATA_DIR":            &c.Paths.DataDir,
		"LOGGING_DIR":               &c.Logging.Dir,
		"LOGGING_LEVEL":             &c.Logging.Level,
		"LOGGING_FORMAT":            &c.Logging.Format,
		"STORE_BACKEND":             &c.Store.Backend,
		"STORE_PERSON_TABLE":        &c.Store.PersonTable,
		"STORE_EVENT_TABLE":         &c.Store.EventTable,
		"STORE_SQLITE_PATH":         &c.Store.SQLite.Path,
		"STORE_REMOTE_URL":          &c.Store.Remote.URL,
		"STORE_REMOTE_ENCODING":     &c.Store.Remote.Encoding,
		"STORE_REMOTE_TOKEN":        &c.Store.Remote.Token,
		"READER_DEVICE":             &c.Reader.Device,
		"CAMERA_SOURCE":             &c.Camera.Source,
		"RECOGNIZER_TESSERACT_PATH": &c.Recognizer.TesseractPath,
		"RECOGNIZER_LANGUAGES":      &c.Recognizer.Languages,
		"RECOGNIZER_NAME_SEPARATOR": &c.Recognizer.NameSeparator,
		"API_BIND":                  &c.API.Bind,
		"TABLED_BIND":               &c.Tabled.Bind,
		"TABLED_GRPC_BIND":          &c.Tabled.GRPCBind,
		"TABLED_DB_PATH":            &c.Tabled.DBPath,
		"TABLED_TOKEN":              &c.Tabled.Token,
		"WEBHOOK_SLACK_URL":         &c.Webhook.SlackURL,
	}
	ints := map[string]*int{
		"LOGGING_RETENTION_DAYS":                &c.Logging.RetentionDays,
		"STORE_RETRY_ATTEMPTS":                  &c.Store.RetryAttempts,
		"STORE_RETRY_BACKOFF_MS":                &c.Store.RetryBackoffMS,
		"STORE_RETRY_MAX_BACKOFF_MS":            &c.Store.RetryMaxBackoffMS,
		"STORE_REMOTE_TIMEOUT_SECONDS":          &c.Store.Remote.TimeoutSeconds,
		"READER_POLL_INTERVAL_MS":               &c.Reader.PollIntervalMS,
		"READER_POLL_WINDOW_MS":                 &c.Reader.PollWindowMS,
		"CAMERA_FRAME_INTERVAL_MS":              &c.Camera.FrameIntervalMS,
		"CAMERA_ROTATION":                       &c.Camera.Rotation,
		"RECOGNIZER_ID_LENGTH":                  &c.Recognizer.IDLength,
		"ENROLLMENT_CAPTURE_TIMEOUT_SECONDS":    &c.Enrollment.CaptureTimeoutSeconds,
		"ENROLLMENT_CONFIRM_TIMEOUT_SECONDS":    &c.Enrollment.ConfirmTimeoutSeconds,
		"ENROLLMENT_COMPLETION_DISPLAY_SECONDS": &c.Enrollment.CompletionDisplaySeconds,
		"ENROLLMENT_MAX_RESTARTS":               &c.Enrollment.MaxRestarts,
		"REFRESH_INTERVAL_SECONDS":              &c.Refresh.IntervalSeconds,
		"WEBHOOK_TIMEOUT_SECONDS":               &c.Webhook.TimeoutSeconds,
	}

	for key, dst := range strs {
		*dst = getenvDefault(lookup, EnvPrefix+key, *dst)
	}
	for key, dst := range ints {
		*dst = getenvInt(lookup, EnvPrefix+key, *dst)
	}
}

func getenvDefault(lookup lookupFunc, key, def string) string {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvInt keeps def when the value is missing, malformed or negative.
func getenvInt(lookup lookupFunc, key string, def int) int {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
