package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

type discordWebhookPayload struct {
	Content string                `json:"content,omitempty"`
	Embeds  []discordWebhookEmbed `json:"embeds,omitempty"`
}

type discordWebhookEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Discord posts a summary embed of each finished session to a webhook.
type Discord struct {
	webhookURL string
	client     *http.Client
}

// NewDiscord returns nil when no webhook is configured; a nil *Discord is a
// valid no-op notifier.
func NewDiscord(webhookURL string, client *http.Client) *Discord {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{webhookURL: webhookURL, client: client}
}

func (d *Discord) Notify(ctx context.Context, outcome solver.Outcome) error {
	if d == nil {
		return nil
	}
	status := string(outcome.Status)
	description := "All quiz pages answered."
	if outcome.Status != solver.StatusDone {
		description = fallbackString(outcome.Reason, "Session failed.")
	}

	fields := []discordEmbedField{
		{Name: "Status", Value: status, Inline: true},
		{Name: "Submissions", Value: strconv.Itoa(outcome.Submissions), Inline: true},
		{Name: "Pages", Value: strconv.Itoa(outcome.Pages), Inline: true},
	}
	if start := strings.TrimSpace(outcome.StartURL); start != "" {
		fields = append(fields, discordEmbedField{Name: "Start URL", Value: truncateForDiscord(start, 240)})
	}
	if final := strings.TrimSpace(outcome.FinalURL); final != "" && final != outcome.StartURL {
		fields = append(fields, discordEmbedField{Name: "Final URL", Value: truncateForDiscord(final, 240)})
	}
	if outcome.SessionID != "" {
		fields = append(fields, discordEmbedField{Name: "Session ID", Value: outcome.SessionID})
	}
	if !outcome.StartedAt.IsZero() && !outcome.FinishedAt.IsZero() {
		elapsed := outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Second)
		fields = append(fields, discordEmbedField{Name: "Elapsed", Value: elapsed.String(), Inline: true})
	}

	payload := discordWebhookPayload{
		Embeds: []discordWebhookEmbed{
			{
				Title:       fmt.Sprintf("Quiz session %s", status),
				Description: truncateForDiscord(description, 900),
				Color:       discordStatusColor(outcome.Status),
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
				Fields:      fields,
			},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook rejected request: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func discordStatusColor(status solver.Status) int {
	switch status {
	case solver.StatusFailed:
		return 15158332
	case solver.StatusDone:
		return 5763719
	default:
		return 16776960
	}
}

func truncateForDiscord(value string, limit int) string {
	text := strings.TrimSpace(value)
	if text == "" || limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return strings.TrimSpace(text[:limit-3]) + "..."
}

func fallbackString(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
