package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bauer-group/nocodb-backup/internal/nocodb"
)

func TestFindBackupFileByTitle(t *testing.T) {
	dir := t.TempDir()
	writeAttachment(t, dir, "report_2024.pdf")
	writeAttachment(t, dir, "other.pdf")

	att := nocodb.Attachment{Title: "report/2024.pdf"}
	got, ok := FindBackupFile(dir, att)
	if !ok {
		t.Fatal("expected match by sanitized title")
	}
	if filepath.Base(got) != "report_2024.pdf" {
		t.Fatalf("got %s", got)
	}
}

func TestFindBackupFileByURLBasename(t *testing.T) {
	dir := t.TempDir()
	writeAttachment(t, dir, "photo.jpg")
	writeAttachment(t, dir, "decoy.jpg")

	att := nocodb.Attachment{
		Title: "missing-title.jpg",
		URL:   "https://nocodb.example.com/download/nc/abc/photo.jpg?signature=xyz&expires=123",
	}
	got, ok := FindBackupFile(dir, att)
	if !ok {
		t.Fatal("expected match by URL basename")
	}
	if filepath.Base(got) != "photo.jpg" {
		t.Fatalf("got %s", got)
	}
}

func TestFindBackupFileSingleFileFallback(t *testing.T) {
	dir := t.TempDir()
	writeAttachment(t, dir, "renamed-on-disk.bin")

	att := nocodb.Attachment{Title: "original.bin", URL: "/download/original.bin"}
	got, ok := FindBackupFile(dir, att)
	if !ok {
		t.Fatal("expected single-file fallback")
	}
	if filepath.Base(got) != "renamed-on-disk.bin" {
		t.Fatalf("got %s", got)
	}
}

func TestFindBackupFileAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeAttachment(t, dir, "a.bin")
	writeAttachment(t, dir, "b.bin")

	att := nocodb.Attachment{Title: "c.bin"}
	if _, ok := FindBackupFile(dir, att); ok {
		t.Fatal("two candidate files must not resolve")
	}
}

func TestFindBackupFileSingleFileWithStraySubdir(t *testing.T) {
	dir := t.TempDir()
	writeAttachment(t, dir, "only.bin")
	if err := os.MkdirAll(filepath.Join(dir, "stray"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	att := nocodb.Attachment{Title: "missing.bin"}
	if _, ok := FindBackupFile(dir, att); ok {
		t.Fatal("a stray subdirectory must make the fallback ambiguous")
	}
}

func writeAttachment(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
}
