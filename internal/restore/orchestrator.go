package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/export"
	"github.com/bauer-group/nocodb-backup/internal/nocodb"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// recordBatchSize is the insert batch size for record replay.
const recordBatchSize = 100

// systemRecordFields are stripped from records before insertion; the
// target instance mints its own.
var systemRecordFields = []string{"Id", "nc_id", "CreatedAt", "UpdatedAt", "created_at", "updated_at"}

// Options narrow a restore run.
type Options struct {
	// Base and Table filter by title; empty means all.
	Base  string
	Table string
	// SkipExisting reuses bases and tables that already exist on the
	// target instead of failing.
	SkipExisting bool
	// WithAttachments re-uploads attachment files during record replay
	// and patches the new references back in.
	WithAttachments bool
}

// Result summarizes a restore phase.
type Result struct {
	Bases          int
	Tables         int
	Records        int
	Attachments    int
	SkippedVirtual []string
	Errors         []string
}

// Orchestrator replays a backup directory against a target instance.
type Orchestrator struct {
	client *nocodb.Client
	log    zerolog.Logger
}

func NewOrchestrator(client *nocodb.Client, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{client: client, log: log}
}

// RestoreSchema recreates bases and tables from the backup manifest.
func (o *Orchestrator) RestoreSchema(ctx context.Context, backupDir string, opts Options) (*Result, error) {
	manifest, err := export.ReadManifest(backupDir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	existingBases, err := o.basesByTitle(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, base := range manifest.Bases {
		if opts.Base != "" && base.Title != opts.Base {
			continue
		}
		targetID, exists := existingBases[base.Title]
		if exists {
			if !opts.SkipExisting {
				return res, fmt.Errorf("base %q already exists on target", base.Title)
			}
			o.log.Info().Str("base", base.Title).Msg("base exists, reusing")
		} else {
			targetID, err = o.client.CreateBase(ctx, base.Title)
			if err != nil {
				return res, fmt.Errorf("create base %q: %w", base.Title, err)
			}
			res.Bases++
			o.log.Info().Str("base", base.Title).Str("id", targetID).Msg("base created")
		}

		existingTables, err := o.tablesByTitle(ctx, targetID)
		if err != nil {
			return res, err
		}

		baseDir := filepath.Join(backupDir, "bases", util.SanitizeName(base.Title))
		for _, table := range base.Tables {
			if opts.Table != "" && table.Title != opts.Table {
				continue
			}
			if _, ok := existingTables[table.Title]; ok {
				if !opts.SkipExisting {
					return res, fmt.Errorf("table %q already exists in base %q", table.Title, base.Title)
				}
				o.log.Info().Str("table", table.Title).Msg("table exists, skipping")
				continue
			}

			schema, err := readSchema(baseDir, table.Title)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("table %s/%s: %v", base.Title, table.Title, err))
				continue
			}
			columns, skipped := PrepareColumns(schema.Columns)
			for _, title := range skipped {
				res.SkippedVirtual = append(res.SkippedVirtual, fmt.Sprintf("%s/%s: %s", base.Title, table.Title, title))
			}
			if err := o.client.CreateTable(ctx, targetID, table.Title, columns); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("create table %s/%s: %v", base.Title, table.Title, err))
				continue
			}
			res.Tables++
			o.log.Info().Str("base", base.Title).Str("table", table.Title).Int("columns", len(columns)).Msg("table created")
		}
	}
	return res, nil
}

// RestoreRecords replays exported records into the target tables in
// insert batches, optionally re-uploading attachments as it goes.
func (o *Orchestrator) RestoreRecords(ctx context.Context, backupDir string, opts Options) (*Result, error) {
	manifest, err := export.ReadManifest(backupDir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	res := &Result{}
	err = o.eachTargetTable(ctx, manifest, opts, func(base export.BaseSummary, table export.TableSummary, baseID, tableID string) error {
		baseDir := filepath.Join(backupDir, "bases", util.SanitizeName(base.Title))
		tableDir := filepath.Join(baseDir, "tables", util.SanitizeName(table.Title))

		records, err := export.ReadRecords(filepath.Join(tableDir, "records.json.gz"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if len(records) == 0 {
			return nil
		}

		schema, err := readSchema(baseDir, table.Title)
		if err != nil {
			return err
		}
		attachFields := nocodb.AttachmentFields(schema.Columns)

		for start := 0; start < len(records); start += recordBatchSize {
			end := start + recordBatchSize
			if end > len(records) {
				end = len(records)
			}
			batch := records[start:end]

			payload := make([]nocodb.Record, len(batch))
			for i, rec := range batch {
				payload[i] = stripFields(rec, attachFields, opts.WithAttachments)
			}

			created, err := o.client.CreateRecords(ctx, tableID, payload)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("table %s/%s: insert batch at %d: %v", base.Title, table.Title, start, err))
				o.log.Error().Err(err).Str("table", table.Title).Int("offset", start).Msg("insert batch failed, continuing with next batch")
				continue
			}
			if len(created) != len(batch) {
				// positional id alignment is only safe when the counts
				// match; stop this table before attachments land on the
				// wrong rows
				res.Errors = append(res.Errors, fmt.Sprintf("table %s/%s: insert batch at %d: created %d of %d records, stopping table replay to avoid misaligned ids",
					base.Title, table.Title, start, len(created), len(batch)))
				o.log.Error().Str("table", table.Title).Int("offset", start).Int("created", len(created)).Int("batch", len(batch)).Msg("created count mismatch, stopping table replay")
				break
			}
			res.Records += len(created)

			if opts.WithAttachments && len(attachFields) > 0 {
				// created rows line up positionally with the batch
				n, errs := o.uploadBatchAttachments(ctx, tableDir, baseID, tableID, attachFields, batch, created)
				res.Attachments += n
				res.Errors = append(res.Errors, errs...)
			}
		}
		o.log.Info().Str("base", base.Title).Str("table", table.Title).Int("records", len(records)).Msg("records restored")
		return nil
	})
	return res, err
}

// RestoreAttachments re-uploads attachment files for records that were
// already replayed. Target rows are aligned positionally with the
// exported rows, so the table row counts must match.
func (o *Orchestrator) RestoreAttachments(ctx context.Context, backupDir string, opts Options) (*Result, error) {
	manifest, err := export.ReadManifest(backupDir)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	res := &Result{}
	err = o.eachTargetTable(ctx, manifest, opts, func(base export.BaseSummary, table export.TableSummary, baseID, tableID string) error {
		baseDir := filepath.Join(backupDir, "bases", util.SanitizeName(base.Title))
		tableDir := filepath.Join(baseDir, "tables", util.SanitizeName(table.Title))

		records, err := export.ReadRecords(filepath.Join(tableDir, "records.json.gz"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		schema, err := readSchema(baseDir, table.Title)
		if err != nil {
			return err
		}
		attachFields := nocodb.AttachmentFields(schema.Columns)
		if len(attachFields) == 0 || len(records) == 0 {
			return nil
		}

		target, err := o.fetchAllRecords(ctx, tableID)
		if err != nil {
			return err
		}
		if len(target) != len(records) {
			return fmt.Errorf("target has %d records but backup has %d, cannot align", len(target), len(records))
		}

		n, errs := o.uploadBatchAttachments(ctx, tableDir, baseID, tableID, attachFields, records, target)
		res.Attachments += n
		res.Errors = append(res.Errors, errs...)
		return nil
	})
	return res, err
}

// uploadBatchAttachments pushes the local files behind each attachment
// reference and patches the minted references onto the target rows.
// Source and target slices line up by index.
func (o *Orchestrator) uploadBatchAttachments(ctx context.Context, tableDir, baseID, tableID string, fields []string, source, target []nocodb.Record) (int, []string) {
	storagePath := fmt.Sprintf("nc/%s/%s", baseID, tableID)
	uploaded := 0
	var errs []string
	var patches []nocodb.Record

	for i, src := range source {
		newID, ok := target[i]["Id"]
		if !ok {
			errs = append(errs, fmt.Sprintf("row %d: created record has no Id", i))
			continue
		}
		patch := nocodb.Record{"Id": newID}
		dirty := false

		for _, field := range fields {
			items, ok := src[field].([]any)
			if !ok || len(items) == 0 {
				continue
			}
			fieldDir := filepath.Join(tableDir, "attachments", util.SanitizeName(field))
			var refs []any
			for _, item := range items {
				att, ok := nocodb.ParseAttachment(item, field)
				if !ok {
					continue
				}
				local, found := FindBackupFile(fieldDir, att)
				if !found {
					errs = append(errs, fmt.Sprintf("row %d field %s: file for %q not found in backup", i, field, att.Title))
					continue
				}
				minted, err := o.client.UploadFile(ctx, local, storagePath)
				if err != nil {
					errs = append(errs, fmt.Sprintf("row %d field %s: upload %s: %v", i, field, filepath.Base(local), err))
					continue
				}
				for _, m := range minted {
					refs = append(refs, map[string]any(m))
				}
				uploaded++
			}
			if len(refs) > 0 {
				patch[field] = refs
				dirty = true
			}
		}
		if dirty {
			patches = append(patches, patch)
		}
	}

	if len(patches) > 0 {
		if err := o.client.PatchRecords(ctx, tableID, patches); err != nil {
			errs = append(errs, fmt.Sprintf("patch attachment references: %v", err))
		}
	}
	return uploaded, errs
}

// eachTargetTable resolves the manifest's bases and tables against the
// target instance and invokes fn for every match of the filters.
func (o *Orchestrator) eachTargetTable(ctx context.Context, manifest *export.Manifest, opts Options,
	fn func(base export.BaseSummary, table export.TableSummary, baseID, tableID string) error) error {

	targetBases, err := o.basesByTitle(ctx)
	if err != nil {
		return err
	}
	for _, base := range manifest.Bases {
		if opts.Base != "" && base.Title != opts.Base {
			continue
		}
		baseID, ok := targetBases[base.Title]
		if !ok {
			return fmt.Errorf("base %q not found on target, restore the schema first", base.Title)
		}
		targetTables, err := o.tablesByTitle(ctx, baseID)
		if err != nil {
			return err
		}
		for _, table := range base.Tables {
			if opts.Table != "" && table.Title != opts.Table {
				continue
			}
			tableID, ok := targetTables[table.Title]
			if !ok {
				return fmt.Errorf("table %q not found in base %q, restore the schema first", table.Title, base.Title)
			}
			if err := fn(base, table, baseID, tableID); err != nil {
				return fmt.Errorf("table %s/%s: %w", base.Title, table.Title, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) basesByTitle(ctx context.Context) (map[string]string, error) {
	bases, err := o.client.ListBases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list target bases: %w", err)
	}
	byTitle := make(map[string]string, len(bases))
	for _, b := range bases {
		byTitle[b.Title] = b.ID
	}
	return byTitle, nil
}

func (o *Orchestrator) tablesByTitle(ctx context.Context, baseID string) (map[string]string, error) {
	tables, err := o.client.ListTables(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("list target tables: %w", err)
	}
	byTitle := make(map[string]string, len(tables))
	for _, t := range tables {
		byTitle[t.Title] = t.ID
	}
	return byTitle, nil
}

func (o *Orchestrator) fetchAllRecords(ctx context.Context, tableID string) ([]nocodb.Record, error) {
	var all []nocodb.Record
	offset := 0
	for {
		page, total, err := o.client.ListRecords(ctx, tableID, nocodb.PageSize, offset)
		if err != nil {
			return nil, err
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

func readSchema(baseDir, tableTitle string) (*nocodb.TableSchema, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, "tables", util.SanitizeName(tableTitle), "schema.json"))
	if err != nil {
		return nil, err
	}
	var schema nocodb.TableSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// stripFields drops system-minted fields and, when attachments are
// re-uploaded separately, the attachment fields too.
func stripFields(rec nocodb.Record, attachFields []string, dropAttachments bool) nocodb.Record {
	out := make(nocodb.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range systemRecordFields {
		delete(out, f)
	}
	if dropAttachments {
		for _, f := range attachFields {
			delete(out, f)
		}
	}
	return out
}
