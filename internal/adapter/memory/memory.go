package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jun/brickmap/internal/adapter"
)

const (
	maxDemoResourceCount = 20
	maxDemoRowsPerTab    = 5000
	maxDemoNameLength    = 255
)

type spreadsheet struct {
	adapter.Resource
	seq  int
	tabs map[string][][]string
}

// Transport implements adapter.Transport with an in-memory Drive.
// Used in DEV_MODE and as a test double. Every call requires an attached token.
type Transport struct {
	mu     sync.RWMutex
	token  string
	sheets map[string]*spreadsheet
	seq    int
	calls  map[string]int
	fail   map[string]error
}

func NewTransport() *Transport {
	return &Transport{
		sheets: make(map[string]*spreadsheet),
		calls:  make(map[string]int),
		fail:   make(map[string]error),
	}
}

func (t *Transport) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *Transport) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *Transport) ClearToken() {
	t.SetToken("")
}

// Calls returns how many times op (a method name) was invoked.
func (t *Transport) Calls(op string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.calls[op]
}

// FailWith makes every later call of op return err. A nil err clears it.
func (t *Transport) FailWith(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.fail, op)
		return
	}
	t.fail[op] = err
}

// Trash moves a spreadsheet to the trash.
func (t *Transport) Trash(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sheets[id]; ok {
		s.Trashed = true
	}
}

// Delete removes a spreadsheet permanently.
func (t *Transport) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sheets, id)
}

// Rows returns a copy of every row of tab, header included.
func (t *Transport) Rows(id, tab string) [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sheets[id]
	if !ok {
		return nil
	}
	return copyRows(s.tabs[tab])
}

// begin counts the call and checks the token. Caller holds t.mu.
func (t *Transport) begin(op string) error {
	t.calls[op]++
	if err := t.fail[op]; err != nil {
		return err
	}
	if t.token == "" {
		return fmt.Errorf("%s: %w", op, adapter.ErrUnauthorized)
	}
	return nil
}

func (t *Transport) ListResources(_ context.Context, q adapter.ResourceQuery) ([]adapter.Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("ListResources"); err != nil {
		return nil, err
	}

	var matches []*spreadsheet
	for _, s := range t.sheets {
		if q.Name != "" && s.Name != q.Name {
			continue
		}
		if q.MIMEType != "" && q.MIMEType != adapter.SpreadsheetMIMEType {
			continue
		}
		if q.ExcludeTrashed && s.Trashed {
			continue
		}
		matches = append(matches, s)
	}

	desc := strings.HasSuffix(q.OrderBy, " desc")
	sort.Slice(matches, func(i, j int) bool {
		if desc {
			return matches[i].seq > matches[j].seq
		}
		return matches[i].seq < matches[j].seq
	})

	out := make([]adapter.Resource, 0, len(matches))
	for _, s := range matches {
		out = append(out, s.Resource)
	}
	return out, nil
}

func (t *Transport) CreateResource(_ context.Context, name string, partitions []string) (*adapter.Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("CreateResource"); err != nil {
		return nil, err
	}
	if len(name) > maxDemoNameLength {
		return nil, fmt.Errorf("name too long (max %d characters)", maxDemoNameLength)
	}
	if len(t.sheets) >= maxDemoResourceCount {
		return nil, fmt.Errorf("spreadsheet limit reached for demo mode (max %d)", maxDemoResourceCount)
	}

	t.seq++
	s := &spreadsheet{
		Resource: adapter.Resource{ID: uuid.New().String(), Name: name},
		seq:      t.seq,
		tabs:     make(map[string][][]string, len(partitions)),
	}
	for _, p := range partitions {
		s.tabs[p] = nil
	}
	t.sheets[s.ID] = s

	res := s.Resource
	return &res, nil
}

func (t *Transport) GetResourceMetadata(_ context.Context, id string) (*adapter.Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("GetResourceMetadata"); err != nil {
		return nil, err
	}
	s, ok := t.sheets[id]
	if !ok || s.Trashed {
		return nil, fmt.Errorf("spreadsheet %s: %w", id, adapter.ErrNotFound)
	}
	res := s.Resource
	return &res, nil
}

// tab returns the rows of partition. Caller holds t.mu.
func (t *Transport) tab(id, partition string) (*spreadsheet, [][]string, error) {
	s, ok := t.sheets[id]
	if !ok {
		return nil, nil, fmt.Errorf("spreadsheet %s: %w", id, adapter.ErrNotFound)
	}
	rows, ok := s.tabs[partition]
	if !ok {
		return nil, nil, fmt.Errorf("unable to parse range: %s", adapter.A1(partition, "A1"))
	}
	return s, rows, nil
}

func (t *Transport) ReadRange(_ context.Context, id, partition, rangeSpec string) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("ReadRange"); err != nil {
		return nil, err
	}
	_, rows, err := t.tab(id, partition)
	if err != nil {
		return nil, err
	}
	r, err := parseRange(rangeSpec)
	if err != nil {
		return nil, err
	}

	out := [][]string{}
	for i := r.firstRow - 1; i < len(rows); i++ {
		if r.lastRow > 0 && i >= r.lastRow {
			break
		}
		out = append(out, trimRow(clip(rows[i], r.firstCol, r.lastCol)))
	}
	// Sheets omits trailing empty rows.
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (t *Transport) AppendRow(_ context.Context, id, partition, _ string, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("AppendRow"); err != nil {
		return err
	}
	s, rows, err := t.tab(id, partition)
	if err != nil {
		return err
	}
	if len(rows) >= maxDemoRowsPerTab {
		return fmt.Errorf("row limit reached for demo mode (max %d)", maxDemoRowsPerTab)
	}
	s.tabs[partition] = append(rows, append([]string(nil), row...))
	return nil
}

func (t *Transport) BatchWriteRanges(_ context.Context, id string, writes []adapter.RangeWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.begin("BatchWriteRanges"); err != nil {
		return err
	}

	for _, w := range writes {
		partition, spec := splitA1(w.Range)
		s, rows, err := t.tab(id, partition)
		if err != nil {
			return err
		}
		r, err := parseRange(spec)
		if err != nil {
			return err
		}
		for i, values := range w.Values {
			idx := r.firstRow - 1 + i
			for len(rows) <= idx {
				rows = append(rows, nil)
			}
			rows[idx] = append([]string(nil), values...)
		}
		s.tabs[partition] = rows
	}
	return nil
}

type cellRange struct {
	firstCol, lastCol int // 1-based, 0 = unbounded
	firstRow, lastRow int
}

// parseRange parses A1 ranges such as "A2:K10001", "A1:K1" or "A:K".
func parseRange(spec string) (cellRange, error) {
	start, end, _ := strings.Cut(spec, ":")
	c1, r1, err := parseCell(start)
	if err != nil {
		return cellRange{}, err
	}
	r := cellRange{firstCol: c1, firstRow: r1}
	if r.firstRow == 0 {
		r.firstRow = 1
	}
	if end == "" {
		r.lastCol, r.lastRow = c1, r1
		return r, nil
	}
	if r.lastCol, r.lastRow, err = parseCell(end); err != nil {
		return cellRange{}, err
	}
	return r, nil
}

func parseCell(s string) (col, row int, err error) {
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i < len(s) {
		if row, err = strconv.Atoi(s[i:]); err != nil || row < 1 {
			return 0, 0, fmt.Errorf("unable to parse range: %s", s)
		}
	}
	return col, row, nil
}

// splitA1 splits "'Tab'!A1:B2" into the unquoted tab name and the range.
func splitA1(a1 string) (string, string) {
	i := strings.LastIndex(a1, "!")
	if i < 0 {
		return "", a1
	}
	tab := a1[:i]
	if len(tab) >= 2 && tab[0] == '\'' && tab[len(tab)-1] == '\'' {
		tab = strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	return tab, a1[i+1:]
}

func clip(row []string, firstCol, lastCol int) []string {
	from := 0
	if firstCol > 0 {
		from = firstCol - 1
	}
	if from >= len(row) {
		return []string{}
	}
	to := len(row)
	if lastCol > 0 && lastCol < to {
		to = lastCol
	}
	return append([]string{}, row[from:to]...)
}

func trimRow(row []string) []string {
	for len(row) > 0 && row[len(row)-1] == "" {
		row = row[:len(row)-1]
	}
	return row
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
