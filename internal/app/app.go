// Package app wires the backup job end to end: dump, data archive,
// API export, upload, retention, alerting.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/alert"
	"github.com/bauer-group/nocodb-backup/internal/archive"
	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/dump"
	"github.com/bauer-group/nocodb-backup/internal/export"
	"github.com/bauer-group/nocodb-backup/internal/lock"
	"github.com/bauer-group/nocodb-backup/internal/nocodb"
	"github.com/bauer-group/nocodb-backup/internal/retention"
	"github.com/bauer-group/nocodb-backup/internal/storage"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// App carries the shared state of all commands.
type App struct {
	Cfg    *config.Config
	Log    zerolog.Logger
	Alerts *alert.Manager
}

func New(cfg *config.Config, log zerolog.Logger) *App {
	return &App{
		Cfg:    cfg,
		Log:    log,
		Alerts: alert.NewManager(cfg.Alerts, log),
	}
}

// LocalStore returns the store over the configured data directory.
func (a *App) LocalStore() *storage.LocalStore {
	return storage.NewLocalStore(a.Cfg.Global.DataDir)
}

// S3Store builds the remote store, or nil when S3 is not configured.
func (a *App) S3Store() (*storage.S3Store, error) {
	if !a.Cfg.Storage.S3.Enabled() {
		return nil, nil
	}
	return storage.NewS3Store(a.Cfg.Storage.S3, a.Log)
}

// APIClient returns a client for the configured platform instance.
func (a *App) APIClient() *nocodb.Client {
	return nocodb.NewClient(a.Cfg.API, a.Log)
}

// Report summarizes one backup job for alerting and CLI output.
type Report struct {
	RunID       string
	BackupID    string
	Status      alert.Status
	Duration    time.Duration
	DumpSize    int64
	Bases       int
	Tables      int
	Records     int
	Attachments int
	Uploaded    int
	Errors      []string
}

// Backup runs one backup job. With dbOnly set, only the database dump
// is taken. The returned error covers setup failures; step failures
// land in the report and drive its status.
func (a *App) Backup(ctx context.Context, dbOnly bool) (*Report, error) {
	jobLock, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return nil, err
	}
	defer jobLock.Release()

	start := time.Now()
	report := &Report{
		RunID:    uuid.NewString(),
		BackupID: util.NewBackupID(start),
	}
	log := a.Log.With().Str("run_id", report.RunID).Str("backup", report.BackupID).Logger()
	log.Info().Bool("db_only", dbOnly).Msg("backup job started")

	local := a.LocalStore()
	backupDir := local.Path(report.BackupID)
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	dumpOK := a.runDump(ctx, backupDir, report, log)
	if !dbOnly {
		a.runArchive(backupDir, report, log)
		a.runExport(ctx, backupDir, report, log)
	}

	uploadOK := a.runUpload(ctx, local, backupDir, report, log)
	a.runRetention(ctx, local, report, log)

	report.Duration = time.Since(start)
	report.Status = jobStatus(report, dumpOK)
	log.Info().Str("status", string(report.Status)).Dur("duration", report.Duration).Msg("backup job finished")

	a.dispatchAlert(ctx, report, uploadOK)
	return report, nil
}

func (a *App) runDump(ctx context.Context, backupDir string, report *Report, log zerolog.Logger) bool {
	if !a.Cfg.Backup.DatabaseDump {
		return false
	}
	dumper := dump.NewDumper(a.Cfg.Database, log)
	res, err := dumper.Dump(ctx, filepath.Join(backupDir, dump.FileName), a.Cfg.Backup.DumpTimeout)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("database dump: %v", err))
		log.Error().Err(err).Msg("database dump failed")
		return false
	}
	report.DumpSize = res.Size
	return true
}

func (a *App) runArchive(backupDir string, report *Report, log zerolog.Logger) {
	if !a.Cfg.Backup.IncludeFiles || a.Cfg.Backup.DataPath == "" {
		return
	}
	name := archive.FileName(a.Cfg.Backup.FilesCompression)
	ok, err := archive.Write(a.Cfg.Backup.DataPath, filepath.Join(backupDir, name))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("data archive: %v", err))
		log.Error().Err(err).Msg("data archive failed")
		return
	}
	if !ok {
		log.Info().Str("path", a.Cfg.Backup.DataPath).Msg("data directory missing or empty, no archive written")
	}
}

func (a *App) runExport(ctx context.Context, backupDir string, report *Report, log zerolog.Logger) {
	if !a.Cfg.Backup.APIExport {
		return
	}
	exporter := export.NewExporter(a.APIClient(), log)
	res, err := exporter.Export(ctx, backupDir, export.Options{
		IncludeRecords:     a.Cfg.Backup.IncludeRecords,
		IncludeAttachments: a.Cfg.Backup.IncludeAttachments,
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("api export: %v", err))
		log.Error().Err(err).Msg("api export failed")
		return
	}
	report.Bases = res.Bases
	report.Tables = res.Tables
	report.Records = res.Records
	report.Attachments = res.Attachments
	report.Errors = append(report.Errors, res.Errors...)
}

func (a *App) runUpload(ctx context.Context, local *storage.LocalStore, backupDir string, report *Report, log zerolog.Logger) bool {
	s3, err := a.S3Store()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("s3 init: %v", err))
		return false
	}
	if s3 == nil {
		return false
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("s3 bucket: %v", err))
		log.Error().Err(err).Msg("bucket check failed")
		return false
	}
	n, err := s3.UploadTree(ctx, backupDir, report.BackupID)
	report.Uploaded = n
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("s3 upload: %v", err))
		log.Error().Err(err).Int("uploaded", n).Msg("upload failed")
		return false
	}
	log.Info().Int("files", n).Msg("backup uploaded")

	if a.Cfg.Backup.DeleteLocalAfterUpload {
		if err := local.DeleteBackup(ctx, report.BackupID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete local copy: %v", err))
		} else {
			log.Info().Msg("local copy removed after upload")
		}
	}
	return true
}

func (a *App) runRetention(ctx context.Context, local *storage.LocalStore, report *Report, log zerolog.Logger) {
	keep := a.Cfg.Backup.RetentionCount
	if _, err := retention.Prune(ctx, local, keep, log); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("local retention: %v", err))
	}
	s3, err := a.S3Store()
	if err != nil || s3 == nil {
		return
	}
	if _, err := retention.Prune(ctx, s3, keep, log); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("remote retention: %v", err))
	}
}

// jobStatus derives the tri-state outcome: clean runs are a success,
// runs with errors are a warning as long as something usable was
// produced, everything else is an error.
func jobStatus(report *Report, dumpOK bool) alert.Status {
	if len(report.Errors) == 0 {
		return alert.StatusSuccess
	}
	if report.Bases > 0 || dumpOK {
		return alert.StatusWarning
	}
	return alert.StatusError
}

func (a *App) dispatchAlert(ctx context.Context, report *Report, uploaded bool) {
	details := map[string]string{
		"instance": a.Cfg.Global.InstanceName,
		"duration": report.Duration.Round(time.Second).String(),
		"bases":    strconv.Itoa(report.Bases),
		"tables":   strconv.Itoa(report.Tables),
		"records":  strconv.Itoa(report.Records),
	}
	if report.DumpSize > 0 {
		details["dump_size"] = util.FormatSize(report.DumpSize)
	}
	if uploaded {
		details["uploaded_files"] = strconv.Itoa(report.Uploaded)
	}

	var subject, message string
	switch report.Status {
	case alert.StatusSuccess:
		subject = fmt.Sprintf("Backup %s succeeded", report.BackupID)
		message = "All backup steps completed."
	case alert.StatusWarning:
		subject = fmt.Sprintf("Backup %s finished with warnings", report.BackupID)
		message = fmt.Sprintf("%d step(s) reported errors:\n%s", len(report.Errors), joinErrors(report.Errors))
	default:
		subject = fmt.Sprintf("Backup %s failed", report.BackupID)
		message = joinErrors(report.Errors)
	}

	a.Alerts.Dispatch(ctx, alert.Event{
		Status:   report.Status,
		Instance: a.Cfg.Global.InstanceName,
		BackupID: report.BackupID,
		RunID:    report.RunID,
		Subject:  subject,
		Message:  message,
		Details:  details,
	})
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "\n"
		}
		out += "- " + e
	}
	return out
}
