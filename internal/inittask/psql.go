package inittask

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// PSQLRunner executes SQL through the psql client binary.
type PSQLRunner struct {
	cfg config.DatabaseConfig
}

func NewPSQLRunner(cfg config.DatabaseConfig) *PSQLRunner {
	return &PSQLRunner{cfg: cfg}
}

func (r *PSQLRunner) run(ctx context.Context, sql string, capture bool) (string, error) {
	if err := util.RequireBinary("psql"); err != nil {
		return "", err
	}
	args := []string{
		"--host", r.cfg.Host,
		"--port", strconv.Itoa(r.cfg.Port),
		"--username", r.cfg.Username,
		"--dbname", r.cfg.Database,
		"--tuples-only",
		"--no-align",
		"--command", sql,
	}
	cmd := util.Command(ctx, "psql", args, map[string]string{"PGPASSWORD": r.cfg.Password})

	var stdout, stderr bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("psql: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

func (r *PSQLRunner) Query(ctx context.Context, sql string) (string, error) {
	return r.run(ctx, sql, true)
}

func (r *PSQLRunner) Exec(ctx context.Context, sql string) error {
	_, err := r.run(ctx, sql, false)
	return err
}

func (r *PSQLRunner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectionTimeout)
	defer cancel()
	_, err := r.run(ctx, "SELECT 1", false)
	return err
}
