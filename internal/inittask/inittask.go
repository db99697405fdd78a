// Package inittask runs one-time maintenance tasks against the
// metadata database before the platform starts.
package inittask

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// Runner executes SQL against the metadata database.
type Runner interface {
	// Query runs a statement and returns its unaligned tuple output.
	Query(ctx context.Context, sql string) (string, error)
	// Exec runs a statement without capturing output.
	Exec(ctx context.Context, sql string) error
	// Ping reports whether the database accepts connections.
	Ping(ctx context.Context) error
}

// Task is one maintenance step. Tasks are gated by config, not by
// marker files, so a task runs on every start while enabled.
type Task struct {
	Name    string
	Enabled func(cfg config.InitConfig) bool
	Run     func(ctx context.Context, r Runner, cfg config.InitConfig, log zerolog.Logger) error
}

// Registry returns the tasks in execution order.
func Registry() []Task {
	return []Task{
		{
			Name:    "collation-check",
			Enabled: func(cfg config.InitConfig) bool { return cfg.CollationCheck },
			Run:     runCollationCheck,
		},
		{
			Name:    "audit-cleanup",
			Enabled: func(cfg config.InitConfig) bool { return cfg.AuditCleanup },
			Run:     runAuditCleanup,
		},
	}
}

// WaitForDatabase polls until the database accepts connections or the
// configured timeout elapses.
func WaitForDatabase(ctx context.Context, r Runner, timeout time.Duration, log zerolog.Logger) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := r.Ping(ctx); err == nil {
			return nil
		} else if time.Now().After(deadline) {
			return fmt.Errorf("database not reachable after %s: %w", timeout, err)
		}
		log.Debug().Msg("waiting for database")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// RunAll executes every enabled task in order. The first failure
// aborts the sequence.
func RunAll(ctx context.Context, r Runner, cfg config.InitConfig, log zerolog.Logger) error {
	if err := WaitForDatabase(ctx, r, cfg.WaitTimeout, log); err != nil {
		return err
	}
	for _, task := range Registry() {
		if !task.Enabled(cfg) {
			log.Debug().Str("task", task.Name).Msg("task disabled, skipping")
			continue
		}
		log.Info().Str("task", task.Name).Msg("running init task")
		if err := task.Run(ctx, r, cfg, log); err != nil {
			return fmt.Errorf("task %s: %w", task.Name, err)
		}
	}
	return nil
}
