package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// WebhookChannel posts a JSON payload to a generic endpoint. When a
// secret is configured the body is signed with HMAC-SHA256.
type WebhookChannel struct {
	cfg  config.WebhookConfig
	http *http.Client
}

func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, ev Event) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("webhook channel not configured")
	}

	payload := map[string]any{
		"status":    string(ev.Status),
		"instance":  ev.Instance,
		"backup_id": ev.BackupID,
		"run_id":    ev.RunID,
		"subject":   ev.Subject,
		"message":   ev.Message,
		"details":   ev.Details,
		"timestamp": ev.Time.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Secret != "" {
		req.Header.Set("X-Signature-256", Signature(body, c.cfg.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s", resp.Status)
	}
	return nil
}

// Signature computes the HMAC-SHA256 of the payload in the
// "sha256=<hex>" form receivers expect. encoding/json marshals maps
// with sorted keys, so the signed bytes are deterministic for a given
// event.
func Signature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
