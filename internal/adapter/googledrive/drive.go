package googledrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jun/brickmap/internal/adapter"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	// Cells are written as given so postal codes and IDs keep leading zeros.
	valueInputRaw = "RAW"
	insertRows    = "INSERT_ROWS"
)

// SheetsTransport implements adapter.Transport with Drive for discovery and
// Sheets for cell values.
type SheetsTransport struct {
	drive  *drive.Service
	sheets *sheets.Service

	mu    sync.RWMutex
	token string
}

// bearerSource feeds the attached token to every request.
type bearerSource struct {
	t *SheetsTransport
}

func (b bearerSource) Token() (*oauth2.Token, error) {
	tok := b.t.Token()
	if tok == "" {
		return nil, adapter.ErrNoToken
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// NewSheetsTransport builds the Drive and Sheets sub-clients. base is the
// underlying round tripper; nil uses http.DefaultTransport.
func NewSheetsTransport(ctx context.Context, base http.RoundTripper) (*SheetsTransport, error) {
	t := &SheetsTransport{}
	client := &http.Client{Transport: &oauth2.Transport{Source: bearerSource{t: t}, Base: base}}

	driveSrv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}
	sheetsSrv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets client: %w", err)
	}
	t.drive = driveSrv
	t.sheets = sheetsSrv
	return t, nil
}

func (t *SheetsTransport) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *SheetsTransport) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *SheetsTransport) ClearToken() {
	t.SetToken("")
}

// escapeQuery escapes a literal for the Drive query language.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func buildQuery(q adapter.ResourceQuery) string {
	var clauses []string
	if q.Name != "" {
		clauses = append(clauses, fmt.Sprintf("name = '%s'", escapeQuery(q.Name)))
	}
	if q.MIMEType != "" {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", escapeQuery(q.MIMEType)))
	}
	if q.ExcludeTrashed {
		clauses = append(clauses, "trashed = false")
	}
	return strings.Join(clauses, " and ")
}

// ListResources searches Drive for spreadsheets matching q.
func (t *SheetsTransport) ListResources(ctx context.Context, q adapter.ResourceQuery) ([]adapter.Resource, error) {
	call := t.drive.Files.List().
		Q(buildQuery(q)).
		Spaces("drive").
		Fields(googleapi.Field("files(id, name, trashed)"))
	if q.OrderBy != "" {
		call = call.OrderBy(q.OrderBy)
	}

	r, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to search spreadsheets: %w", mapError(err))
	}

	out := make([]adapter.Resource, 0, len(r.Files))
	for _, f := range r.Files {
		out = append(out, adapter.Resource{ID: f.Id, Name: f.Name, Trashed: f.Trashed})
	}
	return out, nil
}

// CreateResource creates a spreadsheet with the given tabs.
func (t *SheetsTransport) CreateResource(ctx context.Context, name string, partitions []string) (*adapter.Resource, error) {
	ss := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: name},
	}
	for i, p := range partitions {
		ss.Sheets = append(ss.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: p, Index: int64(i)},
		})
	}

	res, err := t.sheets.Spreadsheets.Create(ss).
		Fields("spreadsheetId,properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to create spreadsheet: %w", mapError(err))
	}
	return &adapter.Resource{ID: res.SpreadsheetId, Name: res.Properties.Title}, nil
}

// GetResourceMetadata verifies the spreadsheet exists, is reachable and is
// not in the trash.
func (t *SheetsTransport) GetResourceMetadata(ctx context.Context, id string) (*adapter.Resource, error) {
	f, err := t.drive.Files.Get(id).
		SupportsAllDrives(true).
		Fields("id, name, trashed").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get spreadsheet metadata: %w", mapError(err))
	}
	if f.Trashed {
		return nil, fmt.Errorf("spreadsheet %s is in the trash: %w", id, adapter.ErrNotFound)
	}
	return &adapter.Resource{ID: f.Id, Name: f.Name}, nil
}

// ReadRange reads formatted cell values.
func (t *SheetsTransport) ReadRange(ctx context.Context, id, partition, rangeSpec string) ([][]string, error) {
	vr, err := t.sheets.Spreadsheets.Values.Get(id, adapter.A1(partition, rangeSpec)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to read range: %w", mapError(err))
	}

	rows := make([][]string, 0, len(vr.Values))
	for _, r := range vr.Values {
		rows = append(rows, toStrings(r))
	}
	return rows, nil
}

// AppendRow inserts row below the table in rangeSpec.
func (t *SheetsTransport) AppendRow(ctx context.Context, id, partition, rangeSpec string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}
	_, err := t.sheets.Spreadsheets.Values.Append(id, adapter.A1(partition, rangeSpec), vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to append row: %w", mapError(err))
	}
	return nil
}

// BatchWriteRanges writes all ranges in one request.
func (t *SheetsTransport) BatchWriteRanges(ctx context.Context, id string, writes []adapter.RangeWrite) error {
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInputRaw}
	for _, w := range writes {
		values := make([][]interface{}, 0, len(w.Values))
		for _, r := range w.Values {
			values = append(values, toCells(r))
		}
		req.Data = append(req.Data, &sheets.ValueRange{Range: w.Range, Values: values})
	}

	if _, err := t.sheets.Spreadsheets.Values.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to write ranges: %w", mapError(err))
	}
	return nil
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

func toStrings(cells []interface{}) []string {
	row := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case nil:
		case string:
			row[i] = v
		default:
			row[i] = fmt.Sprint(v)
		}
	}
	return row
}

// mapError tags not-found and auth failures with adapter sentinels while
// keeping the googleapi error in the chain for message extraction.
func mapError(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	switch gErr.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", adapter.ErrNotFound, err)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", adapter.ErrUnauthorized, err)
	}
	return err
}
