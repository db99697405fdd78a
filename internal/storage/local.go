package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bauer-group/nocodb-backup/internal/util"
)

// LocalStore is the backup tree rooted at the configured data
// directory, one subdirectory per backup id.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root returns the data directory.
func (s *LocalStore) Root() string { return s.root }

// Path returns the directory of one backup.
func (s *LocalStore) Path(id string) string { return filepath.Join(s.root, id) }

func (s *LocalStore) ListBackups(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, ent := range entries {
		if ent.IsDir() && util.IsBackupID(ent.Name()) {
			ids = append(ids, ent.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *LocalStore) DeleteBackup(_ context.Context, id string) error {
	return os.RemoveAll(s.Path(id))
}

// BackupSize returns the total on-disk size of one backup.
func (s *LocalStore) BackupSize(id string) (int64, error) {
	return util.DirSize(s.Path(id))
}
