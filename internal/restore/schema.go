// Package restore replays an exported backup into a target platform
// instance in three phases: schema, records, attachments.
package restore

import (
	"fmt"
	"strings"

	"github.com/bauer-group/nocodb-backup/internal/nocodb"
)

// systemUIDTs are column types the platform creates on its own; they
// must not be part of a table create payload.
var systemUIDTs = map[string]bool{
	"ID":               true,
	"CreatedTime":      true,
	"LastModifiedTime": true,
	"CreatedBy":        true,
	"LastModifiedBy":   true,
}

// virtualUIDTs are computed column types that cannot be created from a
// plain definition. They are skipped and reported to the caller.
var virtualUIDTs = map[string]bool{
	"Links":               true,
	"LinkToAnotherRecord": true,
	"Lookup":              true,
	"Rollup":              true,
	"Formula":             true,
	"Button":              true,
}

// columnProps is the whitelist of properties carried into a column
// create payload. Everything else in the exported schema is
// instance-specific state.
var columnProps = []string{"title", "column_name", "uidt", "dtxp", "dtxs", "rqd", "cdf", "pv", "meta"}

// PrepareColumns filters exported column definitions down to what the
// table create endpoint accepts. It returns the creatable columns and
// the titles of virtual columns that were dropped.
func PrepareColumns(columns []nocodb.Column) (kept []nocodb.Column, skippedVirtual []string) {
	for _, col := range columns {
		uidt := col.String("uidt")
		if systemUIDTs[uidt] || col.Bool("pk") || col.Bool("system") {
			continue
		}
		if virtualUIDTs[uidt] {
			skippedVirtual = append(skippedVirtual, col.String("title"))
			continue
		}

		clean := nocodb.Column{}
		for _, prop := range columnProps {
			if v, ok := col[prop]; ok && v != nil {
				clean[prop] = v
			}
		}
		if (uidt == "SingleSelect" || uidt == "MultiSelect") && clean["dtxp"] == nil {
			if dtxp := selectOptionsDtxp(col); dtxp != "" {
				clean["dtxp"] = dtxp
			}
		}
		kept = append(kept, clean)
	}
	return kept, skippedVirtual
}

// selectOptionsDtxp rebuilds the dtxp option list ('a','b','c') from
// the exported colOptions block.
func selectOptionsDtxp(col nocodb.Column) string {
	opts, ok := col["colOptions"].(map[string]any)
	if !ok {
		return ""
	}
	list, ok := opts["options"].([]any)
	if !ok {
		return ""
	}
	var titles []string
	for _, item := range list {
		opt, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := opt["title"].(string)
		if title == "" {
			continue
		}
		titles = append(titles, fmt.Sprintf("'%s'", strings.ReplaceAll(title, "'", "''")))
	}
	return strings.Join(titles, ",")
}
