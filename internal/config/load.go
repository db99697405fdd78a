package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bauer-group/nocodb-backup/internal/cryptoutil"
)

const envPrefix = "NCB"

// Load reads configuration from a file (optionally encrypted), env vars,
// and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			if typ := configTypeFromPath(resolved); typ != "" {
				vp.SetConfigType(typ)
			}
			key := os.Getenv("NCB_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but NCB_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("NCB_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"ncb.yaml",
		"ncb.yml",
		"ncb.toml",
		"ncb.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "ncb")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range []string{"ncb.yaml.enc", "ncb.yml.enc", "ncb.toml.enc"} {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".toml") || strings.HasSuffix(path, ".toml.enc") || strings.HasSuffix(path, ".toml.encrypted"):
		return "toml"
	case strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.enc") || strings.HasSuffix(path, ".json.encrypted"):
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.data_dir", "./backups")
	vp.SetDefault("global.instance_name", "nocodb")
	vp.SetDefault("global.timezone", "UTC")

	vp.SetDefault("database.host", "localhost")
	vp.SetDefault("database.port", 5432)
	vp.SetDefault("database.username", "nocodb")
	vp.SetDefault("database.database", "nocodb")
	vp.SetDefault("database.connection_timeout", "10s")

	vp.SetDefault("api.url", "http://localhost:8080")
	vp.SetDefault("api.timeout", "60s")
	vp.SetDefault("api.upload_timeout", "120s")

	vp.SetDefault("backup.retention_count", 30)
	vp.SetDefault("backup.database_dump", true)
	vp.SetDefault("backup.dump_timeout", "30m")
	vp.SetDefault("backup.api_export", true)
	vp.SetDefault("backup.include_records", true)
	vp.SetDefault("backup.include_attachments", true)
	vp.SetDefault("backup.include_files", true)
	vp.SetDefault("backup.files_compression", "gzip")
	vp.SetDefault("backup.data_path", "/nocodb-data")

	vp.SetDefault("storage.s3.region", "eu-north-1")
	vp.SetDefault("storage.s3.prefix", "nocodb-backup")
	vp.SetDefault("storage.s3.use_ssl", true)
	vp.SetDefault("storage.s3.force_path_style", true)
	vp.SetDefault("storage.s3.multipart_threshold", 100*1024*1024)
	vp.SetDefault("storage.s3.multipart_chunk_size", 50*1024*1024)

	vp.SetDefault("schedule.enabled", true)
	vp.SetDefault("schedule.mode", "cron")
	vp.SetDefault("schedule.hour", 5)
	vp.SetDefault("schedule.minute", 15)
	vp.SetDefault("schedule.day_of_week", "*")
	vp.SetDefault("schedule.interval_hours", 24)

	vp.SetDefault("alerts.level", "warnings")
	vp.SetDefault("alerts.email.port", 587)
	vp.SetDefault("alerts.email.tls", true)
	vp.SetDefault("alerts.email.from_name", "NocoDB Backup")

	vp.SetDefault("init.wait_timeout", "60s")
	vp.SetDefault("init.collation_check", true)
	vp.SetDefault("init.collation_auto_fix", false)
	vp.SetDefault("init.audit_cleanup", true)
}

const (
	minDumpTimeout = time.Minute
	maxDumpTimeout = 2 * time.Hour
)

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.DumpTimeout == 0 {
		cfg.Backup.DumpTimeout = 30 * time.Minute
	}
	// Keep the dump timeout in a sane range; a sub-minute value aborts
	// any real dump, an unbounded one hides a hung pg_dump.
	if cfg.Backup.DumpTimeout < minDumpTimeout {
		cfg.Backup.DumpTimeout = minDumpTimeout
	}
	if cfg.Backup.DumpTimeout > maxDumpTimeout {
		cfg.Backup.DumpTimeout = maxDumpTimeout
	}
	if cfg.Backup.RetentionCount < 1 {
		cfg.Backup.RetentionCount = 1
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.API.UploadTimeout == 0 {
		cfg.API.UploadTimeout = 120 * time.Second
	}
	cfg.API.URL = strings.TrimRight(cfg.API.URL, "/")
	cfg.Backup.FilesCompression = strings.ToLower(cfg.Backup.FilesCompression)
	cfg.Schedule.Mode = strings.ToLower(cfg.Schedule.Mode)
	cfg.Alerts.Level = strings.ToLower(cfg.Alerts.Level)
	for i, ch := range cfg.Alerts.Channels {
		cfg.Alerts.Channels[i] = strings.ToLower(strings.TrimSpace(ch))
	}
}

func validate(cfg *Config) error {
	switch cfg.Backup.FilesCompression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("invalid files compression: %s", cfg.Backup.FilesCompression)
	}
	switch cfg.Schedule.Mode {
	case "cron", "interval":
	default:
		return fmt.Errorf("invalid schedule mode: %s", cfg.Schedule.Mode)
	}
	if cfg.Schedule.Hour < 0 || cfg.Schedule.Hour > 23 {
		return fmt.Errorf("schedule hour out of range: %d", cfg.Schedule.Hour)
	}
	if cfg.Schedule.Minute < 0 || cfg.Schedule.Minute > 59 {
		return fmt.Errorf("schedule minute out of range: %d", cfg.Schedule.Minute)
	}
	if cfg.Schedule.IntervalHours < 1 || cfg.Schedule.IntervalHours > 168 {
		return fmt.Errorf("schedule interval hours out of range: %d", cfg.Schedule.IntervalHours)
	}
	if err := validateDayOfWeek(cfg.Schedule.DayOfWeek); err != nil {
		return err
	}
	switch cfg.Alerts.Level {
	case "", "errors", "warnings", "all":
	default:
		return fmt.Errorf("invalid alert level: %s", cfg.Alerts.Level)
	}
	for _, ch := range cfg.Alerts.Channels {
		switch ch {
		case "email", "teams", "webhook":
		default:
			return fmt.Errorf("invalid alert channel: %s", ch)
		}
	}
	if cfg.Storage.S3.MultipartChunkSize > 0 && cfg.Storage.S3.MultipartChunkSize < 5*1024*1024 {
		return fmt.Errorf("multipart chunk size below the 5 MiB S3 minimum")
	}
	return nil
}

func validateDayOfWeek(v string) error {
	if v == "*" || v == "" {
		return nil
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if len(part) != 1 || part[0] < '0' || part[0] > '6' {
			return fmt.Errorf("day_of_week must be '*' or comma-separated days 0-6")
		}
	}
	return nil
}

func expandEnv(cfg *Config) {
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Database.Username = os.ExpandEnv(cfg.Database.Username)
	cfg.API.Token = os.ExpandEnv(cfg.API.Token)
	cfg.Storage.S3.AccessKey = os.ExpandEnv(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = os.ExpandEnv(cfg.Storage.S3.SecretKey)
	cfg.Alerts.Email.Password = os.ExpandEnv(cfg.Alerts.Email.Password)
	cfg.Alerts.Webhook.URL = os.ExpandEnv(cfg.Alerts.Webhook.URL)
	cfg.Alerts.Webhook.Secret = os.ExpandEnv(cfg.Alerts.Webhook.Secret)
	cfg.Alerts.Teams.URL = os.ExpandEnv(cfg.Alerts.Teams.URL)
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
