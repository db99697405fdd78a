// Package storage manages backup trees on local disk and in S3.
package storage

import "context"

// Store enumerates and deletes whole backups. Both the local directory
// layout and the S3 key layout implement it, so retention can prune
// either side the same way.
type Store interface {
	// ListBackups returns backup ids sorted ascending. Ids use a
	// sortable timestamp layout, so string order is chronological.
	ListBackups(ctx context.Context) ([]string, error)
	// DeleteBackup removes a backup and everything under it.
	DeleteBackup(ctx context.Context, id string) error
}
