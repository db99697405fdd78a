// ncb backs up and restores NocoDB instances: database dumps, data
// volume archives, API exports, S3 upload, retention, alerting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bauer-group/nocodb-backup/internal/alert"
	"github.com/bauer-group/nocodb-backup/internal/app"
	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/logging"
	"github.com/bauer-group/nocodb-backup/internal/scheduler"
	"github.com/bauer-group/nocodb-backup/internal/version"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "ncb",
		Short:         "NocoDB backup and restore tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default: ncb.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format override (console, json)")

	root.AddCommand(
		newBackupCmd(flags),
		newRunCmd(flags),
		newListCmd(flags),
		newShowCmd(flags),
		newInspectCmd(flags),
		newDeleteCmd(flags),
		newDownloadCmd(flags),
		newRestoreCmd(flags),
		newInitCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return root
}

// setup loads config, applies CLI overrides, and builds the app.
func setup(flags *rootFlags) (*app.App, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Global.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Global.LogFormat = flags.logFormat
	}
	log := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	return app.New(cfg, log), nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	var dbOnly bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run one backup job now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			report, err := a.Backup(ctx, dbOnly)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if report.Status == alert.StatusError {
				return fmt.Errorf("backup failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dbOnly, "db-only", false, "take only the database dump")
	return cmd
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var dbOnly bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run as a service on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			if !a.Cfg.Schedule.Enabled {
				return fmt.Errorf("schedule is disabled in config")
			}
			ctx, cancel := signalContext()
			defer cancel()

			sched := scheduler.New(a.Cfg.Schedule, func(jobCtx context.Context) {
				if _, err := a.Backup(jobCtx, dbOnly); err != nil {
					a.Log.Error().Err(err).Msg("scheduled backup failed to start")
				}
			}, a.Log)
			return sched.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dbOnly, "db-only", false, "take only the database dump")
	return cmd
}

func printReport(cmd *cobra.Command, report *app.Report) {
	cmd.Printf("Backup:   %s\n", report.BackupID)
	cmd.Printf("Status:   %s\n", report.Status)
	cmd.Printf("Duration: %s\n", report.Duration.Round(time.Second))
	if report.Bases > 0 || report.Tables > 0 {
		cmd.Printf("Exported: %d base(s), %d table(s), %d record(s), %d attachment(s)\n",
			report.Bases, report.Tables, report.Records, report.Attachments)
	}
	if report.Uploaded > 0 {
		cmd.Printf("Uploaded: %d file(s)\n", report.Uploaded)
	}
	for _, e := range report.Errors {
		cmd.Printf("Error:    %s\n", e)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("ncb %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
