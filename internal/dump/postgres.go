// Package dump drives pg_dump and psql for the metadata database.
package dump

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bauer-group/nocodb-backup/internal/compress"
	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// FileName is the dump file name inside a backup directory.
const FileName = "database.sql.gz"

// restoreTimeout bounds a psql replay of the dump.
const restoreTimeout = time.Hour

// Result reports one dump or restore run.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
}

// Dumper shells out to the PostgreSQL client tools.
type Dumper struct {
	cfg config.DatabaseConfig
	log zerolog.Logger
}

func NewDumper(cfg config.DatabaseConfig, log zerolog.Logger) *Dumper {
	return &Dumper{cfg: cfg, log: log}
}

func (d *Dumper) env() map[string]string {
	return map[string]string{"PGPASSWORD": d.cfg.Password}
}

func (d *Dumper) connArgs() []string {
	return []string{
		"--host", d.cfg.Host,
		"--port", strconv.Itoa(d.cfg.Port),
		"--username", d.cfg.Username,
	}
}

// Dump streams a plain-format pg_dump through gzip into destPath. The
// run is bounded by timeout; on any failure the partial file is
// removed.
func (d *Dumper) Dump(ctx context.Context, destPath string, timeout time.Duration) (*Result, error) {
	if err := util.RequireBinary("pg_dump"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(d.connArgs(),
		"--format", "plain",
		"--no-owner",
		"--no-privileges",
		d.cfg.Database,
	)
	cmd := util.Command(ctx, "pg_dump", args, d.env())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	d.log.Info().Str("database", d.cfg.Database).Str("dest", destPath).Msg("starting database dump")

	if err := cmd.Start(); err != nil {
		out.Close()
		os.Remove(destPath)
		return nil, fmt.Errorf("start pg_dump: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		gz := compress.NewGzipWriter(out)
		if _, err := io.Copy(gz, stdout); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	})
	g.Go(cmd.Wait)

	runErr := g.Wait()
	if cerr := out.Close(); runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		os.Remove(destPath)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pg_dump timed out after %s", timeout)
		}
		return nil, fmt.Errorf("pg_dump: %w", runErr)
	}

	size, err := util.FileSize(destPath)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: destPath, Size: size, Duration: time.Since(start)}
	d.log.Info().Str("size", util.FormatSize(size)).Dur("duration", res.Duration).Msg("database dump complete")
	return res, nil
}

// Restore replays a gzipped plain dump into targetDB via psql stdin.
func (d *Dumper) Restore(ctx context.Context, dumpPath, targetDB string) (*Result, error) {
	if err := util.RequireBinary("psql"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()

	in, err := os.Open(dumpPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	gz, err := compress.NewGzipReader(in)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	args := append(d.connArgs(),
		"--dbname", targetDB,
		"--set", "ON_ERROR_STOP=1",
		"--quiet",
	)
	cmd := util.Command(ctx, "psql", args, d.env())
	cmd.Stdin = gz
	cmd.Stderr = os.Stderr

	start := time.Now()
	d.log.Info().Str("dump", dumpPath).Str("database", targetDB).Msg("restoring database dump")
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("psql restore timed out after %s", restoreTimeout)
		}
		return nil, fmt.Errorf("psql restore: %w", err)
	}
	return &Result{Path: dumpPath, Duration: time.Since(start)}, nil
}
