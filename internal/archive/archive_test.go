package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/compress"
)

func TestWriteExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "uploads", "image.png"), "png bytes")
	writeFile(t, filepath.Join(src, "config.json"), `{"ok":true}`)

	dest := filepath.Join(t.TempDir(), Name)
	ok, err := Write(src, dest)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !ok {
		t.Fatal("expected archive to be written")
	}

	out := t.TempDir()
	if err := Extract(dest, out, zerolog.Nop()); err != nil {
		t.Fatalf("extract: %v", err)
	}
	for path, want := range map[string]string{
		filepath.Join(out, "uploads", "image.png"): "png bytes",
		filepath.Join(out, "config.json"):          `{"ok":true}`,
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(data) != want {
			t.Fatalf("%s: got %q, want %q", path, data, want)
		}
	}
}

func TestZstdRoundTripAndFind(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "uploads", "doc.pdf"), "pdf bytes")

	backupDir := t.TempDir()
	dest := filepath.Join(backupDir, FileName("zstd"))
	ok, err := Write(src, dest)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !ok {
		t.Fatal("expected archive to be written")
	}

	found, ok := Find(backupDir)
	if !ok || found != dest {
		t.Fatalf("Find returned %q, %v", found, ok)
	}

	out := t.TempDir()
	if err := Extract(found, out, zerolog.Nop()); err != nil {
		t.Fatalf("extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "uploads", "doc.pdf"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Fatalf("got %q", data)
	}
}

func TestWriteEmptyDir(t *testing.T) {
	dest := filepath.Join(t.TempDir(), Name)
	ok, err := Write(t.TempDir(), dest)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok {
		t.Fatal("expected no archive for empty dir")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("partial archive was left behind")
	}
}

func TestWriteMissingDir(t *testing.T) {
	dest := filepath.Join(t.TempDir(), Name)
	ok, err := Write(filepath.Join(t.TempDir(), "does-not-exist"), dest)
	if err != nil {
		t.Fatalf("missing source dir must be a skip, got: %v", err)
	}
	if ok {
		t.Fatal("expected no archive for missing dir")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("archive file was created for missing dir")
	}
}

func TestExtractSkipsUnsafeEntries(t *testing.T) {
	for _, name := range []string{"../evil.txt", "nested/../../evil.txt", "/etc/passwd"} {
		t.Run(name, func(t *testing.T) {
			src := craftedArchive(t, name)
			out := t.TempDir()
			if err := Extract(src, out, zerolog.Nop()); err != nil {
				t.Fatalf("extract: %v", err)
			}
			entries, _ := os.ReadDir(out)
			for _, ent := range entries {
				if strings.Contains(ent.Name(), "evil") || strings.Contains(ent.Name(), "passwd") {
					t.Fatalf("unsafe entry %s was written", ent.Name())
				}
			}
			// the safe entry after the rejected one still comes out
			data, err := os.ReadFile(filepath.Join(out, "good.txt"))
			if err != nil {
				t.Fatalf("safe entry missing: %v", err)
			}
			if string(data) != "safe" {
				t.Fatalf("safe entry content %q", data)
			}
		})
	}
}

// craftedArchive writes a tarball holding the unsafe entry first and a
// safe good.txt after it.
func craftedArchive(t *testing.T, entryName string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := compress.NewGzipWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, entry := range []struct {
		name    string
		content string
	}{
		{entryName, "owned"},
		{"good.txt", "safe"},
	} {
		if err := tw.WriteHeader(&tar.Header{Name: entry.name, Mode: 0o640, Size: int64(len(entry.content)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("header: %v", err)
		}
		if _, err := tw.Write([]byte(entry.content)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	tw.Close()
	gz.Close()

	path := filepath.Join(t.TempDir(), "crafted.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
}
