// Package retention prunes old backups down to a configured count.
package retention

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/storage"
)

// Prune deletes all but the newest keep backups from the store.
// Backup ids sort chronologically as strings, so the newest ids are
// simply the largest. Deletion failures are logged and skipped so one
// stuck backup cannot block the rest.
func Prune(ctx context.Context, store storage.Store, keep int, log zerolog.Logger) (deleted int, err error) {
	if keep < 1 {
		keep = 1
	}
	ids, err := store.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range Excess(ids, keep) {
		if err := store.DeleteBackup(ctx, id); err != nil {
			log.Warn().Err(err).Str("backup", id).Msg("retention delete failed")
			continue
		}
		log.Info().Str("backup", id).Msg("pruned old backup")
		deleted++
	}
	return deleted, nil
}

// Excess returns the ids that fall outside the newest keep, oldest
// first. The input is not modified.
func Excess(ids []string, keep int) []string {
	if len(ids) <= keep {
		return nil
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	excess := sorted[keep:]
	sort.Strings(excess)
	return excess
}
