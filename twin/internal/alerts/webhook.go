package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends a to every configured target. Errors are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(url, a)
		case "teams":
			err = e.sendTeams(url, a)
		case "http":
			err = e.sendHTTP(url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "err", err)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type, "rule", a.RuleName, "state", a.State)
		}
	}
}

func (e *Engine) sendSlack(url string, a *Alert) error {
	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), message(a)),
	})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) sendTeams(url string, a *Alert) error {
	body, err := json.Marshal(map[string]string{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("Battery aging alert: %s", a.RuleName),
		"text":       message(a),
	})
	if err != nil {
		return fmt.Errorf("encode teams payload: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) sendHTTP(url string, a *Alert) error {
	body, err := json.Marshal(map[string]*Alert{"alert": a})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func message(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("resolved: %s on %s", a.RuleName, a.Battery)
	}
	return a.Message
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
