package retention

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type memStore struct {
	ids     []string
	deleted []string
	failOn  string
}

func (m *memStore) ListBackups(context.Context) ([]string, error) {
	return append([]string(nil), m.ids...), nil
}

func (m *memStore) DeleteBackup(_ context.Context, id string) error {
	if id == m.failOn {
		return errors.New("locked")
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func TestExcess(t *testing.T) {
	ids := []string{
		"2024-02-20_04-30-00",
		"2024-01-15_04-30-00",
		"2024-03-01_04-30-00",
	}
	got := Excess(ids, 2)
	if len(got) != 1 || got[0] != "2024-01-15_04-30-00" {
		t.Fatalf("got %v, want the oldest id", got)
	}
	if got := Excess(ids, 3); got != nil {
		t.Fatalf("keep >= len should return nil, got %v", got)
	}
	if got := Excess(nil, 1); got != nil {
		t.Fatalf("empty input should return nil, got %v", got)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := &memStore{ids: []string{
		"2024-01-15_04-30-00",
		"2024-02-20_04-30-00",
		"2024-03-01_04-30-00",
	}}
	deleted, err := Prune(context.Background(), store, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d, want 1", deleted)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "2024-01-15_04-30-00" {
		t.Fatalf("deleted %v, want the oldest backup", store.deleted)
	}
}

func TestPruneContinuesPastFailure(t *testing.T) {
	store := &memStore{
		ids: []string{
			"2024-01-01_04-30-00",
			"2024-01-02_04-30-00",
			"2024-01-03_04-30-00",
			"2024-01-04_04-30-00",
		},
		failOn: "2024-01-01_04-30-00",
	}
	deleted, err := Prune(context.Background(), store, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d, want 1", deleted)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "2024-01-02_04-30-00" {
		t.Fatalf("deleted %v", store.deleted)
	}
}

func TestPruneMinimumKeep(t *testing.T) {
	store := &memStore{ids: []string{"2024-01-01_04-30-00", "2024-01-02_04-30-00"}}
	deleted, err := Prune(context.Background(), store, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d, want 1 (keep clamps to 1)", deleted)
	}
}
