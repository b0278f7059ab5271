/*
Package remote implements tabular.Backend against the remote spreadsheet-like
tabular service over HTTP.

WIRE FORMAT:
  GET    {base}/tables                         -> {"tables": ["Users", ...]}
  POST   {base}/tables                         <- {"name": "Users"}
  GET    {base}/tables/{t}/values              -> {"values": [[...], ...]}
  GET    {base}/tables/{t}/columns/{i}         -> {"values": [...]}
  POST   {base}/tables/{t}/rows                <- {"values": [...]}
  PUT    {base}/tables/{t}/rows/{i}            <- {"values": [...]}
  POST   {base}/tables/{t}/cells:batchUpdate   <- {"data": [{"row","column","value"}]}
  DELETE {base}/tables/{t}/rows/{i}

  Row 0 of every table is the header row.

ERRORS:
  Any non-2xx response becomes *tabular.StatusError carrying the status code
  and the service's error message, so the retry policy can tell quota (429)
  and auth (401/403) failures from the rest. Transport failures are returned
  wrapped and classified by the policy as timeouts or transient errors.

AUTH:
  A bearer token is sent on every request when configured.

SEE ALSO:
  - tabular/backend.go: The interface implemented here
  - tabular/retry.go: How these errors are retried
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/workforce-engine/tabular"
)

// DefaultHTTPTimeout is the transport-level ceiling; the tabular client
// applies its own, usually shorter, per-call deadline.
const DefaultHTTPTimeout = 60 * time.Second

// Backend talks to the remote tabular service.
type Backend struct {
	BaseURL string
	Token   string

	httpClient *http.Client
	logger     zerolog.Logger
}

var _ tabular.Backend = (*Backend)(nil)

// New creates a backend for baseURL.
func New(baseURL, token string, logger zerolog.Logger) *Backend {
	return &Backend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (b *Backend) SetHTTPClient(client *http.Client) *Backend {
	b.httpClient = client
	return b
}

type valuesBody struct {
	Values [][]string `json:"values"`
}

type rowBody struct {
	Values []string `json:"values"`
}

type tablesBody struct {
	Tables []string `json:"tables"`
}

type batchBody struct {
	Data []tabular.CellUpdate `json:"data"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func tablePath(table string) string {
	return "/tables/" + url.PathEscape(table)
}

// =============================================================================
// tabular.Backend
// =============================================================================

func (b *Backend) Tables(ctx context.Context) ([]string, error) {
	var out tablesBody
	if err := b.do(ctx, http.MethodGet, "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

func (b *Backend) CreateTable(ctx context.Context, table string) error {
	return b.do(ctx, http.MethodPost, "/tables", map[string]string{"name": table}, nil)
}

func (b *Backend) GetValues(ctx context.Context, table string) ([][]string, error) {
	var out valuesBody
	if err := b.do(ctx, http.MethodGet, tablePath(table)+"/values", nil, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

func (b *Backend) GetColumn(ctx context.Context, table string, column int) ([]string, error) {
	var out rowBody
	path := tablePath(table) + "/columns/" + strconv.Itoa(column)
	if err := b.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

func (b *Backend) AppendRow(ctx context.Context, table string, values []string) error {
	return b.do(ctx, http.MethodPost, tablePath(table)+"/rows", rowBody{Values: values}, nil)
}

func (b *Backend) UpdateRow(ctx context.Context, table string, index int, values []string) error {
	path := tablePath(table) + "/rows/" + strconv.Itoa(index)
	return b.do(ctx, http.MethodPut, path, rowBody{Values: values}, nil)
}

func (b *Backend) BatchUpdateCells(ctx context.Context, table string, cells []tabular.CellUpdate) error {
	return b.do(ctx, http.MethodPost, tablePath(table)+"/cells:batchUpdate", batchBody{Data: cells}, nil)
}

func (b *Backend) DeleteRow(ctx context.Context, table string, index int) error {
	path := tablePath(table) + "/rows/" + strconv.Itoa(index)
	return b.do(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (b *Backend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	b.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("remote store call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBytes)
	}
	if out == nil || len(respBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	var eb errorBody
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
		if eb.Error.Status != "" {
			msg = eb.Error.Status + ": " + msg
		}
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &tabular.StatusError{Code: code, Message: msg}
}
