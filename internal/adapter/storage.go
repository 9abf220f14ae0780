package adapter

import (
	"context"
	"strings"
)

// SpreadsheetMIMEType is the Drive MIME type of a Google Sheets file.
const SpreadsheetMIMEType = "application/vnd.google-apps.spreadsheet"

// Resource describes a remote spreadsheet.
type Resource struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Trashed bool   `json:"trashed,omitempty"`
}

// ResourceQuery filters ListResources.
type ResourceQuery struct {
	Name           string
	MIMEType       string
	ExcludeTrashed bool
	// OrderBy uses Drive ordering syntax, e.g. "createdTime desc".
	OrderBy string
}

// RangeWrite is one range of a batch write. Range is in A1 notation and
// includes the tab name.
type RangeWrite struct {
	Range  string
	Values [][]string
}

// TokenHolder attaches a bearer token to outgoing calls.
type TokenHolder interface {
	SetToken(token string)
	Token() string
	ClearToken()
}

// Transport defines the remote calls the record store is built on.
// Implementations authenticate with the token currently attached.
type Transport interface {
	TokenHolder

	// ListResources searches for spreadsheets matching q.
	ListResources(ctx context.Context, q ResourceQuery) ([]Resource, error)

	// CreateResource creates a spreadsheet with one tab per partition name.
	CreateResource(ctx context.Context, name string, partitions []string) (*Resource, error)

	// GetResourceMetadata fails if the resource is missing or not accessible.
	GetResourceMetadata(ctx context.Context, id string) (*Resource, error)

	// ReadRange returns the cell values of rangeSpec (A1 notation without
	// tab) in partition. Trailing empty cells may be omitted per row.
	ReadRange(ctx context.Context, id, partition, rangeSpec string) ([][]string, error)

	// AppendRow appends row after the last row of the table in rangeSpec.
	AppendRow(ctx context.Context, id, partition, rangeSpec string, row []string) error

	// BatchWriteRanges overwrites each range with its values.
	BatchWriteRanges(ctx context.Context, id string, writes []RangeWrite) error
}

// A1 builds a tab-qualified A1 range, quoting the tab name.
func A1(partition, rangeSpec string) string {
	return "'" + strings.ReplaceAll(partition, "'", "''") + "'!" + rangeSpec
}

// ColumnName returns the A1 column letters of the 1-based column n.
func ColumnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
