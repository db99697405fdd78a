package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

func TestWebhookSignature(t *testing.T) {
	payload := []byte(`{"status":"success"}`)
	got := Signature(payload, "s3cret")

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got == Signature(payload, "other") {
		t.Fatal("different secrets must not collide")
	}
}

func TestWebhookSendSignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	ev := Event{
		Status:   StatusWarning,
		Instance: "prod",
		BackupID: "2024-03-01_04-30-00",
		Subject:  "Backup finished with warnings",
		Message:  "2 tables failed",
		Time:     time.Date(2024, 3, 1, 4, 35, 0, 0, time.UTC),
	}
	if err := ch.Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotSig != Signature(gotBody, "s3cret") {
		t.Fatal("signature does not verify against delivered body")
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload["status"] != "warning" || payload["backup_id"] != "2024-03-01_04-30-00" {
		t.Fatalf("payload %v", payload)
	}
}

func TestManagerLevelFilter(t *testing.T) {
	cases := []struct {
		level  string
		status Status
		want   bool
	}{
		{"all", StatusSuccess, true},
		{"all", StatusError, true},
		{"warnings", StatusSuccess, false},
		{"warnings", StatusWarning, true},
		{"warnings", StatusError, true},
		{"errors", StatusWarning, false},
		{"errors", StatusError, true},
	}
	for _, tc := range cases {
		m := &Manager{level: tc.level}
		if got := m.shouldSend(tc.status); got != tc.want {
			t.Errorf("level=%s status=%s: got %v, want %v", tc.level, tc.status, got, tc.want)
		}
	}
}
