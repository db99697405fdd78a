package nocodb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// PageSize is the fixed page size for record listing.
const PageSize = 1000

// Client talks to the NocoDB v2 REST API. All requests carry the
// xc-token auth header; all calls are blocking with per-client
// timeouts.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	upload  *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.APIConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		upload:  &http.Client{Timeout: cfg.UploadTimeout},
		log:     log,
	}
}

// BaseURL returns the configured API endpoint without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HasToken reports whether an API token is configured.
func (c *Client) HasToken() bool { return c.token != "" }

type listEnvelope struct {
	List     []json.RawMessage `json:"list"`
	PageInfo struct {
		TotalRows int `json:"totalRows"`
	} `json:"pageInfo"`
}

// ListBases returns all bases (workspaces).
func (c *Client) ListBases(ctx context.Context) ([]Base, error) {
	var env listEnvelope
	if err := c.getJSON(ctx, "/api/v2/meta/bases", nil, &env); err != nil {
		return nil, err
	}
	bases := make([]Base, 0, len(env.List))
	for _, raw := range env.List {
		var b Base
		if err := json.Unmarshal(raw, &b); err != nil {
			continue
		}
		b.Raw = raw
		bases = append(bases, b)
	}
	return bases, nil
}

// ListTables returns all tables of a base, schemas included.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	var env listEnvelope
	if err := c.getJSON(ctx, "/api/v2/meta/bases/"+baseID+"/tables", nil, &env); err != nil {
		return nil, err
	}
	tables := make([]Table, 0, len(env.List))
	for _, raw := range env.List {
		var t Table
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		t.Raw = raw
		tables = append(tables, t)
	}
	return tables, nil
}

// ListRecords returns one page of records plus the server-reported
// total row count.
func (c *Client) ListRecords(ctx context.Context, tableID string, limit, offset int) ([]Record, int, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var env struct {
		List     []Record `json:"list"`
		PageInfo struct {
			TotalRows int `json:"totalRows"`
		} `json:"pageInfo"`
	}
	if err := c.getJSON(ctx, "/api/v2/tables/"+tableID+"/records", params, &env); err != nil {
		return nil, 0, err
	}
	return env.List, env.PageInfo.TotalRows, nil
}

// CreateBase creates a base and returns its id.
func (c *Client) CreateBase(ctx context.Context, title string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/meta/bases", map[string]string{"title": title}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create base %q: no id in response", title)
	}
	return out.ID, nil
}

// CreateTable creates a table with the given column definitions.
func (c *Client) CreateTable(ctx context.Context, baseID, title string, columns []Column) error {
	payload := map[string]any{"title": title, "columns": columns}
	return c.doJSON(ctx, http.MethodPost, "/api/v2/meta/bases/"+baseID+"/tables", payload, nil)
}

// CreateRecords inserts a batch of records and returns the created rows
// as reported by the API. Depending on the server version the response
// is either a bare array or a list envelope.
func (c *Client) CreateRecords(ctx context.Context, tableID string, records []Record) ([]Record, error) {
	body, err := c.do(ctx, c.http, http.MethodPost, "/api/v2/tables/"+tableID+"/records", jsonBody(records), "application/json")
	if err != nil {
		return nil, err
	}

	var created []Record
	if err := json.Unmarshal(body, &created); err == nil {
		return created, nil
	}
	var env struct {
		List []Record `json:"list"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	return env.List, nil
}

// PatchRecords updates records by id.
func (c *Client) PatchRecords(ctx context.Context, tableID string, records []Record) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/v2/tables/"+tableID+"/records", records, nil)
}

// UploadFile pushes one local file into platform storage and returns
// the attachment descriptors the platform minted for it.
func (c *Client) UploadFile(ctx context.Context, localPath, storagePath string) ([]Record, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filepath.Base(localPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := "/api/v2/storage/upload"
	if storagePath != "" {
		endpoint += "?path=" + url.QueryEscape(storagePath)
	}
	body, err := c.do(ctx, c.upload, http.MethodPost, endpoint, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var uploaded []Record
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return uploaded, nil
}

// DownloadFile fetches an attachment to targetPath. Absolute URLs are
// used as-is; root-relative and bare-relative URLs are resolved against
// the API base.
func (c *Client) DownloadFile(ctx context.Context, rawURL, targetPath string) error {
	full := c.ResolveURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return err
	}
	req.Header.Set("xc-token", c.token)

	resp, err := c.upload.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: %s", full, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// ResolveURL expands the three attachment URL forms found in record
// data: absolute, root-relative, and bare-relative.
func (c *Client) ResolveURL(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "http"):
		return rawURL
	case strings.HasPrefix(rawURL, "/"):
		return c.baseURL + rawURL
	default:
		return c.baseURL + "/" + rawURL
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	body, err := c.do(ctx, c.http, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	body, err := c.do(ctx, c.http, method, endpoint, jsonBody(in), "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) do(ctx context.Context, client *http.Client, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xc-token", c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Endpoint: endpoint, Detail: errorDetail(payload)}
	}
	return payload, nil
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func errorDetail(payload []byte) string {
	var e struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &e) == nil {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return ""
}

// APIError is a non-2xx response from the platform API.
type APIError struct {
	Status   int
	Endpoint string
	Detail   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d on %s: %s", e.Status, e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("api error %d on %s", e.Status, e.Endpoint)
}
