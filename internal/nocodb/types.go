package nocodb

import "encoding/json"

// Base is one workspace in the platform. Raw carries the full API
// object so exports can store it verbatim.
type Base struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Raw   json.RawMessage
}

// Table is one table inside a base.
type Table struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Raw   json.RawMessage
}

// Record is one row as returned by the records API. Field names map to
// column titles.
type Record map[string]any

// Column is one column definition from a table schema. Kept as a loose
// map because schemas are stored verbatim and only a handful of
// properties are interpreted.
type Column map[string]any

// TableSchema is the parsed form of a stored schema.json.
type TableSchema struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Columns []Column `json:"columns"`
}

// Attachment describes one file referenced from an attachment-typed
// field value.
type Attachment struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
	Field    string `json:"field"`
}

const attachmentUIDT = "Attachment"

// String returns the column property as a string, or "".
func (c Column) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the column property as a bool; numeric truthiness is
// honored because the API serializes some flags as 0/1.
func (c Column) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}

// AttachmentFields returns the titles of attachment-typed columns.
func AttachmentFields(columns []Column) []string {
	var fields []string
	for _, col := range columns {
		if col.String("uidt") == attachmentUIDT {
			if title := col.String("title"); title != "" {
				fields = append(fields, title)
			}
		}
	}
	return fields
}

// ParseAttachment converts one element of an attachment field value.
// The second return is false when the element carries no URL.
func ParseAttachment(v any, field string) (Attachment, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Attachment{}, false
	}
	url, ok := m["url"].(string)
	if !ok || url == "" {
		return Attachment{}, false
	}
	att := Attachment{URL: url, Field: field}
	if s, ok := m["path"].(string); ok {
		att.Path = s
	}
	if s, ok := m["title"].(string); ok {
		att.Title = s
	}
	if s, ok := m["mimetype"].(string); ok {
		att.Mimetype = s
	}
	if n, ok := m["size"].(float64); ok {
		att.Size = int64(n)
	}
	return att, true
}
