package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global   GlobalConfig   `mapstructure:"global"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Init     InitConfig     `mapstructure:"init"`
}

type GlobalConfig struct {
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"` // json or console
	LockFile         string `mapstructure:"lock_file"`
	DataDir          string `mapstructure:"data_dir"` // local backup sets live here
	InstanceName     string `mapstructure:"instance_name"`
	Timezone         string `mapstructure:"timezone"`
	ConfigPassphrase string `mapstructure:"config_passphrase"` // optional; may come from env
}

// DatabaseConfig is the PostgreSQL connection used by pg_dump, psql
// restore, and the init tasks.
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// APIConfig is the NocoDB REST endpoint used for export and restore.
type APIConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

type BackupConfig struct {
	RetentionCount         int           `mapstructure:"retention_count"`
	DatabaseDump           bool          `mapstructure:"database_dump"`
	DumpTimeout            time.Duration `mapstructure:"dump_timeout"`
	APIExport              bool          `mapstructure:"api_export"`
	IncludeRecords         bool          `mapstructure:"include_records"`
	IncludeAttachments     bool          `mapstructure:"include_attachments"`
	IncludeFiles           bool          `mapstructure:"include_files"`
	FilesCompression       string        `mapstructure:"files_compression"`
	DataPath               string        `mapstructure:"data_path"` // upload-volume mount
	DeleteLocalAfterUpload bool          `mapstructure:"delete_local_after_upload"`
}

type StorageConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint           string `mapstructure:"endpoint"`
	Region             string `mapstructure:"region"`
	Bucket             string `mapstructure:"bucket"`
	AccessKey          string `mapstructure:"access_key"`
	SecretKey          string `mapstructure:"secret_key"`
	Prefix             string `mapstructure:"prefix"`
	UseSSL             bool   `mapstructure:"use_ssl"`
	ForcePathStyle     bool   `mapstructure:"force_path_style"`
	MultipartThreshold int64  `mapstructure:"multipart_threshold"`
	MultipartChunkSize int64  `mapstructure:"multipart_chunk_size"`
}

// Enabled reports whether remote storage is fully configured.
// Without it, backups stay local only.
func (s S3Config) Enabled() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

type ScheduleConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Mode          string `mapstructure:"mode"` // cron or interval
	Hour          int    `mapstructure:"hour"`
	Minute        int    `mapstructure:"minute"`
	DayOfWeek     string `mapstructure:"day_of_week"` // "*" or comma-separated 0-6
	IntervalHours int    `mapstructure:"interval_hours"`
}

type AlertsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Level    string        `mapstructure:"level"`    // errors, warnings, all
	Channels []string      `mapstructure:"channels"` // email, teams, webhook
	Email    EmailConfig   `mapstructure:"email"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	Teams    TeamsConfig   `mapstructure:"teams"`
}

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	TLS      bool     `mapstructure:"tls"` // STARTTLS
	SSL      bool     `mapstructure:"ssl"` // implicit TLS (port 465)
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	FromName string   `mapstructure:"from_name"`
	To       []string `mapstructure:"to"`
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"` // enables HMAC signing
}

type TeamsConfig struct {
	URL string `mapstructure:"url"`
}

// InitConfig enables/disables the database initialization tasks.
type InitConfig struct {
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
	CollationCheck   bool          `mapstructure:"collation_check"`
	CollationAutoFix bool          `mapstructure:"collation_auto_fix"`
	AuditCleanup     bool          `mapstructure:"audit_cleanup"`
}
