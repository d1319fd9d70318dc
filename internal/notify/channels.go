package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"aegis-soar/internal/config"
	"aegis-soar/internal/schema"
)

// Channel delivers one alert.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// BuildChannels constructs channels from configuration. Unknown channel
// types are skipped with a log line.
func BuildChannels(configs []config.ChannelConfig, logger *slog.Logger) []Channel {
	var channels []Channel
	for _, cfg := range configs {
		switch cfg.Type {
		case "webhook":
			channels = append(channels, NewWebhookChannel(cfg.Name, cfg.URL, cfg.Headers))
		case "slack":
			channels = append(channels, NewSlackChannel(cfg.URL, cfg.Channel, cfg.Username))
		case "log":
			channels = append(channels, NewLogChannel(logger))
		default:
			logger.Warn("skipping unknown channel type", "type", cfg.Type, "name", cfg.Name)
		}
	}
	return channels
}

// WebhookChannel posts the alert as JSON to an HTTP endpoint.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(name, url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		name:    name,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) Name() string {
	return w.name
}

func (w *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SlackChannel posts the alert to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(webhookURL, channel, username string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"channel":  s.channel,
		"username": s.username,
		"attachments": []map[string]any{
			{
				"color": severityColor(alert.Severity),
				"title": alert.Subject,
				"text":  alert.Body,
				"fields": []map[string]any{
					{"title": "Source IP", "value": alert.SourceIP, "short": true},
					{"title": "Risk Score", "value": fmt.Sprintf("%d", alert.RiskScore), "short": true},
					{"title": "Failed Attempts", "value": fmt.Sprintf("%d", alert.FailedAttempts), "short": true},
				},
				"footer": fmt.Sprintf("Event ID: %s", alert.EventID),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func severityColor(sev schema.Severity) string {
	switch sev {
	case schema.SeverityHigh:
		return "#FF0000"
	case schema.SeverityMedium:
		return "#FFA500"
	case schema.SeverityLow:
		return "#00FF00"
	default:
		return "#808080"
	}
}

// LogChannel writes alerts to the structured log.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Name() string {
	return "log"
}

func (l *LogChannel) Send(_ context.Context, alert Alert) error {
	l.logger.Warn(alert.Subject,
		"event_id", alert.EventID,
		"severity", alert.Severity,
		"event_name", alert.EventName,
		"source_ip", alert.SourceIP,
		"risk_score", alert.RiskScore,
		"failed_attempts", alert.FailedAttempts,
	)
	return nil
}
