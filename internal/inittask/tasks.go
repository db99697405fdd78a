package inittask

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// auditTables are the log tables that grow without bound and can be
// safely truncated before start.
var auditTables = []string{
	"nc_audit_v2",
	"nc_hook_logs_v2",
	"nc_sync_logs_v2",
	"nc_automation_executions",
}

// runCollationCheck detects a glibc collation version mismatch after
// an OS upgrade. With auto-fix enabled it reindexes affected indexes
// and refreshes the recorded collation version.
func runCollationCheck(ctx context.Context, r Runner, cfg config.InitConfig, log zerolog.Logger) error {
	out, err := r.Query(ctx, `
SELECT datname FROM pg_database
WHERE datcollversion IS DISTINCT FROM pg_database_collation_actual_version(oid)
  AND datname = current_database()`)
	if err != nil {
		return fmt.Errorf("check collation version: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		log.Info().Msg("collation version matches")
		return nil
	}

	log.Warn().Msg("collation version mismatch detected")
	if !cfg.CollationAutoFix {
		log.Warn().Msg("auto-fix disabled, leaving mismatch in place")
		return nil
	}

	indexes, err := r.Query(ctx, `
SELECT indexrelid::regclass::text FROM pg_index i
JOIN pg_class c ON c.oid = i.indexrelid
WHERE c.relkind = 'i' AND indisvalid`)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	for _, idx := range strings.Fields(indexes) {
		log.Info().Str("index", idx).Msg("reindexing")
		if err := r.Exec(ctx, fmt.Sprintf("REINDEX INDEX CONCURRENTLY %s", idx)); err != nil {
			return fmt.Errorf("reindex %s: %w", idx, err)
		}
	}
	name, err := r.Query(ctx, "SELECT current_database()")
	if err != nil {
		return err
	}
	if err := r.Exec(ctx, fmt.Sprintf("ALTER DATABASE %q REFRESH COLLATION VERSION", strings.TrimSpace(name))); err != nil {
		return fmt.Errorf("refresh collation version: %w", err)
	}
	log.Info().Msg("collation version refreshed")
	return nil
}

// runAuditCleanup truncates the audit and log tables that exist.
func runAuditCleanup(ctx context.Context, r Runner, _ config.InitConfig, log zerolog.Logger) error {
	for _, table := range auditTables {
		exists, err := r.Query(ctx, fmt.Sprintf("SELECT to_regclass('public.%s')", table))
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if strings.TrimSpace(exists) == "" {
			log.Debug().Str("table", table).Msg("table absent, skipping")
			continue
		}
		if err := r.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("table truncated")
	}
	return nil
}
