package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enxitry/enxitry/internal/config"
)

const userAgent = "enxitry/0.1.0"

// Alerter delivers a single operator alert.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// NewAlerter builds a Slack incoming-webhook alerter when a URL is
// configured, or a no-op otherwise.
func NewAlerter(cfg *config.Config) Alerter {
	if cfg == nil {
		return noopAlerter{}
	}
	url := strings.TrimSpace(cfg.Webhook.SlackURL)
	if url == "" {
		return noopAlerter{}
	}
	timeout := cfg.Webhook.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &slackAlerter{
		endpoint: url,
		client:   &http.Client{Timeout: timeout},
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

type slackAlerter struct {
	endpoint string
	client   *http.Client
}

func (s *slackAlerter) Alert(ctx context.Context, title, message string) error {
	text := strings.TrimSpace(message)
	if title = strings.TrimSpace(title); title != "" {
		text = fmt.Sprintf("*%s*\n%s", title, text)
	}
	body, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, string, string) error { return nil }
