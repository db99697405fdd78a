package restore

import (
	"testing"

	"github.com/bauer-group/nocodb-backup/internal/nocodb"
)

func TestPrepareColumnsFiltersSystemAndVirtual(t *testing.T) {
	columns := []nocodb.Column{
		{"title": "Id", "uidt": "ID", "pk": true},
		{"title": "Created", "uidt": "CreatedTime"},
		{"title": "Name", "uidt": "SingleLineText", "column_name": "name", "rqd": true, "order": 3.0},
		{"title": "Owner", "uidt": "LinkToAnotherRecord"},
		{"title": "Total", "uidt": "Formula"},
		{"title": "Hidden", "uidt": "SingleLineText", "system": true},
	}

	kept, skipped := PrepareColumns(columns)
	if len(kept) != 1 {
		t.Fatalf("kept %d columns, want 1: %v", len(kept), kept)
	}
	col := kept[0]
	if col["title"] != "Name" || col["column_name"] != "name" || col["rqd"] != true {
		t.Fatalf("unexpected column payload: %v", col)
	}
	if _, ok := col["order"]; ok {
		t.Fatal("non-whitelisted property leaked into payload")
	}
	if len(skipped) != 2 || skipped[0] != "Owner" || skipped[1] != "Total" {
		t.Fatalf("skipped virtual %v, want [Owner Total]", skipped)
	}
}

func TestPrepareColumnsSynthesizesSelectOptions(t *testing.T) {
	columns := []nocodb.Column{
		{
			"title": "Status",
			"uidt":  "SingleSelect",
			"colOptions": map[string]any{
				"options": []any{
					map[string]any{"title": "Open"},
					map[string]any{"title": "It's done"},
				},
			},
		},
		{
			"title": "Tags",
			"uidt":  "MultiSelect",
			"dtxp":  "'a','b'",
		},
	}

	kept, _ := PrepareColumns(columns)
	if len(kept) != 2 {
		t.Fatalf("kept %d columns, want 2", len(kept))
	}
	if got := kept[0]["dtxp"]; got != "'Open','It''s done'" {
		t.Fatalf("synthesized dtxp %q", got)
	}
	// an existing dtxp wins over colOptions
	if got := kept[1]["dtxp"]; got != "'a','b'" {
		t.Fatalf("existing dtxp was replaced: %q", got)
	}
}

func TestPrepareColumnsSystemFlagAsNumber(t *testing.T) {
	// JSON decoding yields float64 for 0/1 flag values
	columns := []nocodb.Column{
		{"title": "Meta", "uidt": "SingleLineText", "system": float64(1)},
		{"title": "Real", "uidt": "SingleLineText", "system": float64(0)},
	}
	kept, _ := PrepareColumns(columns)
	if len(kept) != 1 || kept[0]["title"] != "Real" {
		t.Fatalf("kept %v, want only Real", kept)
	}
}
