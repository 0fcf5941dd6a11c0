// Package slack posts escalation notices to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

const (
	maxNotesLen = 3000
	httpTimeout = 10 * time.Second
)

// Escalation is an alert that was just moved to escalated.
type Escalation struct {
	Alert     *alert.Alert
	ChangedBy string
	At        time.Time
	// Report is the alert's triage report, nil when none was filed.
	Report *report.Report
}

// Notifier sends escalations to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Notify posts e to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, e *Escalation) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(e))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(e *Escalation) map[string]any {
	blocks := []map[string]any{
		headerBlock(e),
		fieldsBlock(e),
	}
	if e.Report != nil {
		blocks = append(blocks, map[string]any{"type": "divider"}, reportBlock(e.Report))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(e))
	return map[string]any{
		"text":   fmt.Sprintf("Alert %s escalated by %s", e.Alert.ID, e.ChangedBy),
		"blocks": blocks,
	}
}

func headerBlock(e *Escalation) map[string]any {
	title := e.Alert.Summary()
	if title == "" {
		title = e.Alert.ID
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Escalated: %s", severityEmoji(e.Alert.Severity()), title),
		},
	}
}

func fieldsBlock(e *Escalation) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Alert:* %s", e.Alert.ID)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Escalated by:* %s", e.ChangedBy)},
	}
	if e.Alert.Severity() != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", e.Alert.Severity())})
	}
	if e.Alert.Source() != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Source:* %s", e.Alert.Source())})
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reportBlock(r *report.Report) map[string]any {
	text := fmt.Sprintf("*Triage:* %s / %s by %s", r.Verdict, r.Action, r.Analyst)
	if s := r.AISuggestion; s != nil {
		text += fmt.Sprintf("\n*AI suggested:* %s / %s (%.0f%%)", s.Verdict, s.Action, s.Confidence*100)
	}
	if notes := truncate(r.Notes, maxNotesLen); notes != "" {
		text += "\n\n" + notes
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func contextBlock(e *Escalation) map[string]any {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("triagedesk • alert %s • %s", e.Alert.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	}
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "\U0001f534" // red circle
	case "medium", "warning":
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e0" // orange circle
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
