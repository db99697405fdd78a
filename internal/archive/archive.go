// Package archive packs and unpacks the application data directory as
// a gzip-compressed tarball.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/compress"
)

const baseName = "nocodb-data.tar"

// Name is the archive file name with the default gzip compression.
const Name = baseName + ".gz"

// FileName returns the archive name for a compression kind.
func FileName(kind string) string {
	switch kind {
	case compress.TypeZstd:
		return baseName + ".zst"
	case compress.TypeNone:
		return baseName
	default:
		return Name
	}
}

func kindFromName(path string) string {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return compress.TypeZstd
	case strings.HasSuffix(path, ".gz"):
		return compress.TypeGzip
	default:
		return compress.TypeNone
	}
}

// Find returns the archive present in a backup directory, any
// compression kind.
func Find(dir string) (string, bool) {
	for _, kind := range []string{compress.TypeGzip, compress.TypeZstd, compress.TypeNone} {
		p := filepath.Join(dir, FileName(kind))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// Write tars srcDir into destPath, compressed per the file extension.
// Entry names are relative to srcDir with forward slashes. A missing
// srcDir is a skip, not an error; likewise, if srcDir holds no regular
// files the partial archive is removed. Both report (false, nil).
func Write(srcDir, destPath string) (bool, error) {
	if _, err := os.Stat(srcDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return false, err
	}

	gz, err := compress.WrapWriter(kindFromName(destPath), out)
	if err != nil {
		out.Close()
		os.Remove(destPath)
		return false, err
	}
	tw := tar.NewWriter(gz)

	files := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
		files++
		return nil
	})

	if err := tw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := gz.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(destPath)
		return false, walkErr
	}
	if files == 0 {
		os.Remove(destPath)
		return false, nil
	}
	return true, nil
}

// Extract unpacks srcPath into destDir, detecting the compression from
// the file extension. Entries with absolute names or a ".." path
// element are never extracted; each is skipped with a warning and the
// rest of the archive is still unpacked.
func Extract(srcPath, destDir string, log zerolog.Logger) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := compress.WrapReader(kindFromName(srcPath), in)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := checkEntryName(hdr.Name); err != nil {
			// Next() discards the rejected entry's payload
			log.Warn().Err(err).Msg("unsafe archive entry skipped")
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// symlinks and specials are not restored
		}
	}
}

func checkEntryName(name string) error {
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("archive entry %q: absolute path", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("archive entry %q: path traversal", name)
		}
	}
	return nil
}
