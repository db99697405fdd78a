package restore

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bauer-group/nocodb-backup/internal/nocodb"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// FindBackupFile locates the on-disk file behind an attachment
// reference inside a field's attachments directory. It tries four
// strategies in order: the sanitized title, the basename of the stored
// path, the basename of the URL with its query stripped, and finally
// the single file in the directory when exactly one exists.
func FindBackupFile(fieldDir string, att nocodb.Attachment) (string, bool) {
	var candidates []string
	if att.Title != "" {
		candidates = append(candidates, util.SanitizeName(att.Title))
	}
	if att.Path != "" {
		candidates = append(candidates, util.SanitizeName(path.Base(att.Path)))
	}
	if att.URL != "" {
		candidates = append(candidates, util.SanitizeName(urlBase(att.URL)))
	}

	for _, name := range candidates {
		if name == "" || name == "." || name == "/" {
			continue
		}
		full := filepath.Join(fieldDir, name)
		if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
			return full, true
		}
	}

	entries, err := os.ReadDir(fieldDir)
	if err != nil {
		return "", false
	}
	// the fallback only holds when the directory contains exactly one
	// entry; anything extra makes the guess ambiguous
	if len(entries) == 1 && entries[0].Type().IsRegular() {
		return filepath.Join(fieldDir, entries[0].Name()), true
	}
	return "", false
}

func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(strings.SplitN(rawURL, "?", 2)[0])
	}
	return path.Base(u.Path)
}
