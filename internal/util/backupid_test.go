package util

import (
	"sort"
	"testing"
	"time"
)

func TestNewBackupID(t *testing.T) {
	ts := time.Date(2024, 3, 1, 4, 30, 5, 0, time.UTC)
	id := NewBackupID(ts)
	if id != "2024-03-01_04-30-05" {
		t.Fatalf("got %q", id)
	}
	if !IsBackupID(id) {
		t.Fatal("generated id does not validate")
	}
}

func TestIsBackupID(t *testing.T) {
	valid := []string{"2024-03-01_04-30-05", "1999-12-31_23-59-59"}
	for _, id := range valid {
		if !IsBackupID(id) {
			t.Errorf("%q should validate", id)
		}
	}
	invalid := []string{
		"",
		"2024-03-01",
		"2024-03-01_04-30-05-extra",
		"2024-13-01_04-30-05",
		"not-a-backup-at-all!",
	}
	for _, id := range invalid {
		if IsBackupID(id) {
			t.Errorf("%q should not validate", id)
		}
	}
}

func TestBackupIDStringOrderIsChronological(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 3, 1, 4, 29, 59, 0, time.UTC),
		time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC),
	}
	ids := make([]string, len(times))
	for i, ts := range times {
		ids[i] = NewBackupID(ts)
	}
	sort.Strings(ids)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, ts := range times {
		if ids[i] != NewBackupID(ts) {
			t.Fatalf("string order diverges from time order at %d: %v", i, ids)
		}
	}
}
