package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/compress"
	"github.com/bauer-group/nocodb-backup/internal/nocodb"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// ManifestVersion identifies the on-disk export layout.
const ManifestVersion = "1.0"

// ManifestName is written last, so its presence marks a complete export.
const ManifestName = "manifest.json"

// Manifest is the top-level index of an API export.
type Manifest struct {
	Version   string        `json:"version"`
	SourceURL string        `json:"source_url"`
	Bases     []BaseSummary `json:"bases"`
}

// BaseSummary is one base entry in the manifest.
type BaseSummary struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Tables []TableSummary `json:"tables"`
}

// TableSummary is one table entry in a base summary.
type TableSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	RecordsCount     int    `json:"records_count"`
	AttachmentsCount int    `json:"attachments_count"`
}

// Options select which parts of the platform state get exported.
type Options struct {
	IncludeRecords     bool
	IncludeAttachments bool
}

// Result summarizes one export run. Errors holds recoverable per-base
// and per-table failures; the export keeps going past them.
type Result struct {
	Bases       int
	Tables      int
	Records     int
	Attachments int
	Errors      []string
}

// Exporter walks the platform API and writes the export tree under a
// backup directory.
type Exporter struct {
	client *nocodb.Client
	log    zerolog.Logger
}

func NewExporter(client *nocodb.Client, log zerolog.Logger) *Exporter {
	return &Exporter{client: client, log: log}
}

// Export writes the full export tree into destDir and finishes with
// the manifest. Partial failures are collected in the result rather
// than aborting the run.
func (e *Exporter) Export(ctx context.Context, destDir string, opts Options) (*Result, error) {
	res := &Result{}

	bases, err := e.client.ListBases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}

	manifest := Manifest{
		Version:   ManifestVersion,
		SourceURL: e.client.BaseURL(),
		Bases:     []BaseSummary{},
	}

	for _, base := range bases {
		if base.ID == "" {
			e.log.Warn().Str("title", base.Title).Msg("base without id, skipping")
			continue
		}
		summary, err := e.exportBase(ctx, destDir, base, opts, res)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("base %s: %v", base.Title, err))
			e.log.Error().Err(err).Str("base", base.Title).Msg("base export failed")
			continue
		}
		manifest.Bases = append(manifest.Bases, *summary)
		res.Bases++
	}

	if err := writeJSON(filepath.Join(destDir, ManifestName), manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return res, nil
}

func (e *Exporter) exportBase(ctx context.Context, destDir string, base nocodb.Base, opts Options, res *Result) (*BaseSummary, error) {
	baseDir := filepath.Join(destDir, "bases", util.SanitizeName(base.Title))
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(baseDir, "metadata.json"), json.RawMessage(base.Raw)); err != nil {
		return nil, err
	}

	tables, err := e.client.ListTables(ctx, base.ID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	summary := &BaseSummary{ID: base.ID, Title: base.Title, Tables: []TableSummary{}}
	for _, table := range tables {
		if table.ID == "" {
			e.log.Warn().Str("base", base.Title).Str("title", table.Title).Msg("table without id, skipping")
			continue
		}
		ts, err := e.exportTable(ctx, baseDir, table, opts, res)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("table %s/%s: %v", base.Title, table.Title, err))
			e.log.Error().Err(err).Str("base", base.Title).Str("table", table.Title).Msg("table export failed")
			continue
		}
		summary.Tables = append(summary.Tables, *ts)
		res.Tables++
	}
	return summary, nil
}

func (e *Exporter) exportTable(ctx context.Context, baseDir string, table nocodb.Table, opts Options, res *Result) (*TableSummary, error) {
	tableDir := filepath.Join(baseDir, "tables", util.SanitizeName(table.Title))
	if err := os.MkdirAll(tableDir, 0o750); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(tableDir, "schema.json"), json.RawMessage(table.Raw)); err != nil {
		return nil, err
	}

	summary := &TableSummary{ID: table.ID, Title: table.Title}
	if !opts.IncludeRecords {
		return summary, nil
	}

	records, err := e.fetchAllRecords(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	if err := writeRecords(filepath.Join(tableDir, "records.json.gz"), records); err != nil {
		return nil, err
	}
	summary.RecordsCount = len(records)
	res.Records += len(records)

	if opts.IncludeAttachments {
		var schema nocodb.TableSchema
		if err := json.Unmarshal(table.Raw, &schema); err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		n := e.exportAttachments(ctx, tableDir, schema.Columns, records)
		summary.AttachmentsCount = n
		res.Attachments += n
	}
	return summary, nil
}

// fetchAllRecords pages through a table at the fixed page size, moving
// the offset by the number of rows actually returned. It stops on an
// empty page or once the offset reaches the server-reported total.
func (e *Exporter) fetchAllRecords(ctx context.Context, tableID string) ([]nocodb.Record, error) {
	var all []nocodb.Record
	offset := 0
	for {
		page, total, err := e.client.ListRecords(ctx, tableID, nocodb.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list records at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		offset += len(page)
		if offset >= total {
			break
		}
	}
	return all, nil
}

// exportAttachments downloads every attachment referenced by records.
// Failures are logged and skipped; the return value counts successful
// downloads for this table only.
func (e *Exporter) exportAttachments(ctx context.Context, tableDir string, columns []nocodb.Column, records []nocodb.Record) int {
	fields := nocodb.AttachmentFields(columns)
	if len(fields) == 0 {
		return 0
	}

	count := 0
	for _, rec := range records {
		for _, field := range fields {
			items, ok := rec[field].([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				att, ok := nocodb.ParseAttachment(item, field)
				if !ok || att.URL == "" {
					continue
				}
				name := att.Title
				if name == "" {
					name = baseNameFromURL(att.URL)
				}
				if name == "" {
					continue
				}
				target := filepath.Join(tableDir, "attachments", util.SanitizeName(field), util.SanitizeName(name))
				if err := e.client.DownloadFile(ctx, att.URL, target); err != nil {
					e.log.Warn().Err(err).Str("file", name).Msg("attachment download failed, skipping")
					continue
				}
				count++
			}
		}
	}
	return count
}

func baseNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return filepath.Base(strings.SplitN(rawURL, "?", 2)[0])
	}
	return filepath.Base(u.Path)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func writeRecords(path string, records []nocodb.Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := compress.NewGzipWriter(f)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if records == nil {
		records = []nocodb.Record{}
	}
	if err := enc.Encode(records); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadRecords loads a records.json.gz file written by the exporter.
func ReadRecords(path string) ([]nocodb.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := compress.NewGzipReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var records []nocodb.Record
	if err := json.NewDecoder(gz).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadManifest loads the manifest of an export directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
