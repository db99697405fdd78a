package inittask

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

type fakeRunner struct {
	queries  []string
	execs    []string
	results  map[string]string
	pingErrs int
}

func (f *fakeRunner) Query(_ context.Context, sql string) (string, error) {
	f.queries = append(f.queries, sql)
	for needle, out := range f.results {
		if strings.Contains(sql, needle) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) Exec(_ context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	return nil
}

func (f *fakeRunner) Ping(context.Context) error {
	if f.pingErrs > 0 {
		f.pingErrs--
		return errors.New("refused")
	}
	return nil
}

func TestRegistryOrder(t *testing.T) {
	tasks := Registry()
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	if tasks[0].Name != "collation-check" || tasks[1].Name != "audit-cleanup" {
		t.Fatalf("unexpected order: %s, %s", tasks[0].Name, tasks[1].Name)
	}
}

func TestRunAllGating(t *testing.T) {
	r := &fakeRunner{}
	cfg := config.InitConfig{WaitTimeout: time.Second}
	if err := RunAll(context.Background(), r, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(r.queries) != 0 || len(r.execs) != 0 {
		t.Fatal("disabled tasks must not touch the database")
	}
}

func TestAuditCleanupTruncatesExistingTables(t *testing.T) {
	r := &fakeRunner{results: map[string]string{
		"to_regclass('public.nc_audit_v2')":     "nc_audit_v2\n",
		"to_regclass('public.nc_hook_logs_v2')": "nc_hook_logs_v2\n",
	}}
	cfg := config.InitConfig{WaitTimeout: time.Second, AuditCleanup: true}
	if err := RunAll(context.Background(), r, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(r.execs) != 2 {
		t.Fatalf("got execs %v, want truncates for the two existing tables", r.execs)
	}
	for _, sql := range r.execs {
		if !strings.HasPrefix(sql, "TRUNCATE TABLE nc_") {
			t.Fatalf("unexpected exec %q", sql)
		}
	}
}

func TestCollationCheckNoMismatch(t *testing.T) {
	r := &fakeRunner{}
	cfg := config.InitConfig{WaitTimeout: time.Second, CollationCheck: true, CollationAutoFix: true}
	if err := RunAll(context.Background(), r, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(r.execs) != 0 {
		t.Fatalf("no mismatch must mean no fixes, got %v", r.execs)
	}
}

func TestCollationCheckAutoFix(t *testing.T) {
	r := &fakeRunner{results: map[string]string{
		"datcollversion":     "nocodb\n",
		"pg_index":           "idx_a\nidx_b\n",
		"current_database()": "nocodb\n",
	}}
	cfg := config.InitConfig{WaitTimeout: time.Second, CollationCheck: true, CollationAutoFix: true}
	if err := RunAll(context.Background(), r, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	var reindexes, refreshes int
	for _, sql := range r.execs {
		switch {
		case strings.HasPrefix(sql, "REINDEX INDEX CONCURRENTLY"):
			reindexes++
		case strings.Contains(sql, "REFRESH COLLATION VERSION"):
			refreshes++
		}
	}
	if reindexes != 2 || refreshes != 1 {
		t.Fatalf("got %d reindexes and %d refreshes: %v", reindexes, refreshes, r.execs)
	}
}

func TestWaitForDatabaseRetries(t *testing.T) {
	r := &fakeRunner{pingErrs: 1}
	if err := WaitForDatabase(context.Background(), r, 10*time.Second, zerolog.Nop()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
