package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bauer-group/nocodb-backup/internal/archive"
	"github.com/bauer-group/nocodb-backup/internal/dump"
	"github.com/bauer-group/nocodb-backup/internal/restore"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

type restoreFlags struct {
	backupID        string
	base            string
	table           string
	skipExisting    bool
	withAttachments bool
	force           bool
}

func newRestoreCmd(flags *rootFlags) *cobra.Command {
	rf := &restoreFlags{}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore parts of a backup into a target instance",
	}
	cmd.PersistentFlags().StringVar(&rf.backupID, "backup", "", "backup id to restore from (required)")
	cmd.PersistentFlags().StringVar(&rf.base, "base", "", "restore only this base (by title)")
	cmd.PersistentFlags().StringVar(&rf.table, "table", "", "restore only this table (by title)")
	cmd.PersistentFlags().BoolVar(&rf.force, "force", false, "skip confirmation")

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Recreate bases and tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestorePhase(cmd, flags, rf, "schema")
		},
	}
	schema.Flags().BoolVar(&rf.skipExisting, "skip-existing", false, "reuse bases and tables that already exist")

	records := &cobra.Command{
		Use:   "records",
		Short: "Replay exported records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestorePhase(cmd, flags, rf, "records")
		},
	}
	records.Flags().BoolVar(&rf.withAttachments, "with-attachments", false, "re-upload attachments during replay")

	attachments := &cobra.Command{
		Use:   "attachments",
		Short: "Re-upload attachments for already restored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestorePhase(cmd, flags, rf, "attachments")
		},
	}

	var targetDB string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Replay the database dump into a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			dir, err := resolveBackupDir(a.LocalStore().Path, rf.backupID)
			if err != nil {
				return err
			}
			if targetDB == "" {
				targetDB = a.Cfg.Database.Database
			}
			if !rf.force && !confirm(cmd, fmt.Sprintf("Replay dump %s into database %q?", rf.backupID, targetDB)) {
				cmd.Println("Aborted.")
				return nil
			}
			ctx, cancel := signalContext()
			defer cancel()

			dumper := dump.NewDumper(a.Cfg.Database, a.Log)
			res, err := dumper.Restore(ctx, filepath.Join(dir, dump.FileName), targetDB)
			if err != nil {
				return err
			}
			cmd.Printf("Dump replayed into %q in %s\n", targetDB, res.Duration.Round(time.Second))
			return nil
		},
	}
	dumpCmd.Flags().StringVar(&targetDB, "target-db", "", "database to restore into (default: configured database)")

	var dest string
	files := &cobra.Command{
		Use:   "files",
		Short: "Extract the data volume archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			dir, err := resolveBackupDir(a.LocalStore().Path, rf.backupID)
			if err != nil {
				return err
			}
			if dest == "" {
				dest = a.Cfg.Backup.DataPath
			}
			if dest == "" {
				return fmt.Errorf("no destination: set --dest or backup.data_path")
			}
			src, found := archive.Find(dir)
			if !found {
				return fmt.Errorf("backup %s has no data archive", rf.backupID)
			}
			if !rf.force && !confirm(cmd, fmt.Sprintf("Extract data archive of %s into %s?", rf.backupID, dest)) {
				cmd.Println("Aborted.")
				return nil
			}
			if err := archive.Extract(src, dest, a.Log); err != nil {
				return err
			}
			cmd.Printf("Archive extracted to %s\n", dest)
			return nil
		},
	}
	files.Flags().StringVar(&dest, "dest", "", "extraction target (default: backup.data_path)")

	cmd.AddCommand(schema, records, attachments, dumpCmd, files)
	return cmd
}

func runRestorePhase(cmd *cobra.Command, flags *rootFlags, rf *restoreFlags, phase string) error {
	a, err := setup(flags)
	if err != nil {
		return err
	}
	dir, err := resolveBackupDir(a.LocalStore().Path, rf.backupID)
	if err != nil {
		return err
	}
	if !rf.force && !confirm(cmd, fmt.Sprintf("Restore %s from %s into %s?", phase, rf.backupID, a.Cfg.API.URL)) {
		cmd.Println("Aborted.")
		return nil
	}
	ctx, cancel := signalContext()
	defer cancel()

	orch := restore.NewOrchestrator(a.APIClient(), a.Log)
	opts := restore.Options{
		Base:            rf.base,
		Table:           rf.table,
		SkipExisting:    rf.skipExisting,
		WithAttachments: rf.withAttachments,
	}

	var res *restore.Result
	switch phase {
	case "schema":
		res, err = orch.RestoreSchema(ctx, dir, opts)
	case "records":
		res, err = orch.RestoreRecords(ctx, dir, opts)
	case "attachments":
		res, err = orch.RestoreAttachments(ctx, dir, opts)
	}
	if res != nil {
		printRestoreResult(cmd, res)
	}
	return err
}

func printRestoreResult(cmd *cobra.Command, res *restore.Result) {
	if res.Bases > 0 || res.Tables > 0 {
		cmd.Printf("Created:  %d base(s), %d table(s)\n", res.Bases, res.Tables)
	}
	if res.Records > 0 {
		cmd.Printf("Records:  %d restored\n", res.Records)
	}
	if res.Attachments > 0 {
		cmd.Printf("Uploads:  %d attachment(s)\n", res.Attachments)
	}
	for _, title := range res.SkippedVirtual {
		cmd.Printf("Skipped virtual column: %s\n", title)
	}
	for _, e := range res.Errors {
		cmd.Printf("Error:    %s\n", e)
	}
}

// resolveBackupDir validates the id and checks the backup exists
// locally.
func resolveBackupDir(pathFor func(string) string, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("--backup is required")
	}
	if !util.IsBackupID(id) {
		return "", fmt.Errorf("%q is not a backup id", id)
	}
	dir := pathFor(id)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("backup %s not found locally (download it first)", id)
	}
	return dir, nil
}
