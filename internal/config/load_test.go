package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bauer-group/nocodb-backup/internal/cryptoutil"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ncb.yaml", "global:\n  instance_name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.InstanceName != "test" {
		t.Fatalf("instance %q", cfg.Global.InstanceName)
	}
	if cfg.Backup.RetentionCount != 30 {
		t.Fatalf("retention %d", cfg.Backup.RetentionCount)
	}
	if cfg.Backup.DumpTimeout != 30*time.Minute {
		t.Fatalf("dump timeout %s", cfg.Backup.DumpTimeout)
	}
	if cfg.API.URL != "http://localhost:8080" {
		t.Fatalf("api url %q", cfg.API.URL)
	}
	if cfg.Schedule.Mode != "cron" || cfg.Schedule.Hour != 5 || cfg.Schedule.Minute != 15 {
		t.Fatalf("schedule %+v", cfg.Schedule)
	}
	if cfg.Storage.S3.MultipartThreshold != 100*1024*1024 {
		t.Fatalf("threshold %d", cfg.Storage.S3.MultipartThreshold)
	}
}

func TestLoadClampsDumpTimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ncb.yaml", "backup:\n  dump_timeout: 5s\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.DumpTimeout != time.Minute {
		t.Fatalf("got %s, want clamp to 1m", cfg.Backup.DumpTimeout)
	}

	cfg, err = Load(writeConfig(t, "ncb.yaml", "backup:\n  dump_timeout: 26h\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.DumpTimeout != 2*time.Hour {
		t.Fatalf("got %s, want clamp to 2h", cfg.Backup.DumpTimeout)
	}
}

func TestLoadTrimsAPIURL(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ncb.yaml", "api:\n  url: https://nocodb.example.com/\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.URL != "https://nocodb.example.com" {
		t.Fatalf("got %q", cfg.API.URL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad mode":      "schedule:\n  mode: hourly\n",
		"bad hour":      "schedule:\n  hour: 24\n",
		"bad dow":       "schedule:\n  day_of_week: \"8\"\n",
		"bad channel":   "alerts:\n  channels: [pager]\n",
		"bad level":     "alerts:\n  level: loud\n",
		"chunk too low": "storage:\n  s3:\n    multipart_chunk_size: 1024\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "ncb.yaml", content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")
	cfg, err := Load(writeConfig(t, "ncb.yaml", "database:\n  password: ${TEST_DB_PASSWORD}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Fatalf("got %q", cfg.Database.Password)
	}
}

func TestLoadEncryptedConfig(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	keyStr := "base64:" + base64.StdEncoding.EncodeToString(key)

	plain := "global:\n  instance_name: encrypted-test\n"
	parsed, err := cryptoutil.ParseKey(keyStr)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	sealed, err := cryptoutil.EncryptConfig([]byte(plain), parsed)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ncb.yaml.enc")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("NCB_CONFIG_KEY", keyStr)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.InstanceName != "encrypted-test" {
		t.Fatalf("instance %q", cfg.Global.InstanceName)
	}
}

func TestLoadEncryptedConfigWithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ncb.yaml.enc")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("NCB_CONFIG_KEY", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for encrypted config without key")
	}
}
