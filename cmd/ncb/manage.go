package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bauer-group/nocodb-backup/internal/archive"
	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/dump"
	"github.com/bauer-group/nocodb-backup/internal/export"
	"github.com/bauer-group/nocodb-backup/internal/inittask"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local and remote backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			local := a.LocalStore()
			localIDs, err := local.ListBackups(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Local backups (%s):\n", local.Root())
			if len(localIDs) == 0 {
				cmd.Println("  none")
			}
			for _, id := range localIDs {
				size, err := local.BackupSize(id)
				if err != nil {
					cmd.Printf("  %s  (size unknown: %v)\n", id, err)
					continue
				}
				cmd.Printf("  %s  %s\n", id, util.FormatSize(size))
			}

			s3, err := a.S3Store()
			if err != nil {
				return err
			}
			if s3 == nil {
				return nil
			}
			remoteIDs, err := s3.ListBackups(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("S3 backups (%s/%s):\n", a.Cfg.Storage.S3.Bucket, a.Cfg.Storage.S3.Prefix)
			if len(remoteIDs) == 0 {
				cmd.Println("  none")
			}
			for _, id := range remoteIDs {
				cmd.Printf("  %s\n", id)
			}
			return nil
		},
	}
}

func newShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <backup-id>",
		Short: "Show size and contents of a local backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			id := args[0]
			if !util.IsBackupID(id) {
				return fmt.Errorf("%q is not a backup id", id)
			}
			local := a.LocalStore()
			dir := local.Path(id)
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("backup %s not found locally", id)
			}

			size, err := local.BackupSize(id)
			if err != nil {
				return err
			}
			cmd.Printf("Backup: %s\n", id)
			cmd.Printf("Path:   %s\n", dir)
			cmd.Printf("Size:   %s\n", util.FormatSize(size))

			artifacts := []string{filepath.Join(dir, dump.FileName), filepath.Join(dir, export.ManifestName)}
			if arch, found := archive.Find(dir); found {
				artifacts = append(artifacts, arch)
			}
			for _, path := range artifacts {
				if fsize, err := util.FileSize(path); err == nil {
					cmd.Printf("  %-22s %s\n", filepath.Base(path), util.FormatSize(fsize))
				}
			}
			return nil
		},
	}
}

func newInspectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <backup-id>",
		Short: "Print the export manifest of a local backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			dir := a.LocalStore().Path(args[0])
			manifest, err := export.ReadManifest(dir)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			cmd.Printf("Source: %s (format %s)\n", manifest.SourceURL, manifest.Version)
			for _, base := range manifest.Bases {
				cmd.Printf("Base %q (%s)\n", base.Title, base.ID)
				for _, table := range base.Tables {
					cmd.Printf("  %-30s %6d record(s), %d attachment(s)\n",
						table.Title, table.RecordsCount, table.AttachmentsCount)
				}
			}
			return nil
		},
	}
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var force, localOnly, s3Only bool
	cmd := &cobra.Command{
		Use:   "delete <backup-id>",
		Short: "Delete a backup locally and/or from S3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			id := args[0]
			if !util.IsBackupID(id) {
				return fmt.Errorf("%q is not a backup id", id)
			}
			if localOnly && s3Only {
				return fmt.Errorf("--local-only and --s3-only are mutually exclusive")
			}
			if !force && !confirm(cmd, fmt.Sprintf("Delete backup %s?", id)) {
				cmd.Println("Aborted.")
				return nil
			}
			ctx, cancel := signalContext()
			defer cancel()

			if !s3Only {
				if err := a.LocalStore().DeleteBackup(ctx, id); err != nil {
					return fmt.Errorf("delete local: %w", err)
				}
				cmd.Printf("Deleted local backup %s\n", id)
			}
			if !localOnly {
				s3, err := a.S3Store()
				if err != nil {
					return err
				}
				if s3 != nil {
					if err := s3.DeleteBackup(ctx, id); err != nil {
						return fmt.Errorf("delete from s3: %w", err)
					}
					cmd.Printf("Deleted S3 backup %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	cmd.Flags().BoolVar(&localOnly, "local-only", false, "delete only the local copy")
	cmd.Flags().BoolVar(&s3Only, "s3-only", false, "delete only the S3 copy")
	return cmd
}

func newDownloadCmd(flags *rootFlags) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "download <backup-id>",
		Short: "Download a backup from S3 into the local data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			id := args[0]
			if !util.IsBackupID(id) {
				return fmt.Errorf("%q is not a backup id", id)
			}
			s3, err := a.S3Store()
			if err != nil {
				return err
			}
			if s3 == nil {
				return fmt.Errorf("s3 storage is not configured")
			}
			if dest == "" {
				dest = a.LocalStore().Path(id)
			}
			ctx, cancel := signalContext()
			defer cancel()

			n, err := s3.DownloadTree(ctx, id, dest)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("backup %s not found in s3", id)
			}
			cmd.Printf("Downloaded %d file(s) to %s\n", n, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "target directory (default: data dir)")
	return cmd
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Run database init tasks (collation check, audit cleanup)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			runner := inittask.NewPSQLRunner(a.Cfg.Database)
			return inittask.RunAll(ctx, runner, a.Cfg.Init, a.Log)
		},
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config file utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt <input> <output>",
		Short: "Encrypt a config file with the key from NCB_CONFIG_KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("NCB_CONFIG_KEY")
			if key == "" {
				return fmt.Errorf("NCB_CONFIG_KEY is not set")
			}
			if err := config.EncryptConfigFile(args[0], args[1], key); err != nil {
				return err
			}
			cmd.Printf("Encrypted %s -> %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.AddCommand(encrypt)
	return cmd
}

// confirm asks an interactive yes/no question on stdin.
func confirm(cmd *cobra.Command, question string) bool {
	cmd.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
