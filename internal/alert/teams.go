package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// TeamsChannel posts an adaptive card to a Teams incoming webhook.
type TeamsChannel struct {
	cfg  config.TeamsConfig
	http *http.Client
}

func NewTeamsChannel(cfg config.TeamsConfig) *TeamsChannel {
	return &TeamsChannel{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *TeamsChannel) Name() string { return "teams" }

func statusColor(s Status) string {
	switch s {
	case StatusSuccess:
		return "good"
	case StatusWarning:
		return "warning"
	default:
		return "attention"
	}
}

func (c *TeamsChannel) Send(ctx context.Context, ev Event) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("teams channel not configured")
	}

	body := []map[string]any{
		{
			"type":   "TextBlock",
			"size":   "large",
			"weight": "bolder",
			"color":  statusColor(ev.Status),
			"text":   ev.Subject,
		},
		{
			"type": "TextBlock",
			"wrap": true,
			"text": ev.Message,
		},
	}
	if len(ev.Details) > 0 {
		keys := make([]string, 0, len(ev.Details))
		for k := range ev.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		facts := make([]map[string]string, 0, len(keys))
		for _, k := range keys {
			facts = append(facts, map[string]string{"title": k, "value": ev.Details[k]})
		}
		body = append(body, map[string]any{"type": "FactSet", "facts": facts})
	}

	card := map[string]any{
		"type": "message",
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": map[string]any{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.4",
				"body":    body,
			},
		}},
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("teams webhook: %s", resp.Status)
	}
	return nil
}
