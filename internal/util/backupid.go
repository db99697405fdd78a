package util

import "time"

// Backup sets are named by a fixed-width timestamp so that string order
// equals chronological order.
const BackupIDLayout = "2006-01-02_15-04-05"

// NewBackupID formats a backup set identifier for the given time.
func NewBackupID(t time.Time) string {
	return t.Format(BackupIDLayout)
}

// IsBackupID reports whether name is a well-formed backup set identifier.
func IsBackupID(name string) bool {
	if len(name) != len(BackupIDLayout) {
		return false
	}
	_, err := time.Parse(BackupIDLayout, name)
	return err == nil
}
