// Package sheet reads the operator's spreadsheet of business records.
package sheet

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sbr-tools/sbr-cli/internal/config"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Row is one spreadsheet record. All values are whitespace-normalized.
type Row struct {
	// Index is the 1-based position among data rows (the header is not counted).
	Index      int
	Identifier string
	Name       string
	Status     string
	Phone      string
	Email      string
	Latitude   string
	Longitude  string
	Source     string
	Notes      string
}

// Table is a header plus data records read from one worksheet.
type Table struct {
	Path    string
	Sheet   string
	headers []string
	columns map[string]int
	records [][]string
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeSpace collapses whitespace runs, trims, and maps blank or NaN
// cells to "".
func NormalizeSpace(s string) string {
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

// Open reads the worksheet selected by sheet from the workbook at path.
// sheet is a name or a 0-based index; empty selects the first sheet.
func Open(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	name, err := resolveSheet(f.GetSheetList(), sheet)
	if err != nil {
		return nil, fmt.Errorf("workbook %s: %w", path, err)
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", name)
	}
	return newTable(path, name, rows[0], rows[1:]), nil
}

func resolveSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", errors.New("workbook has no sheets")
	}
	want = strings.TrimSpace(want)
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == want {
			return s, nil
		}
	}
	if i, err := strconv.Atoi(want); err == nil {
		if i < 0 || i >= len(sheets) {
			return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", i, len(sheets))
		}
		return sheets[i], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, want) {
			return s, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found (have %s)", want, strings.Join(sheets, ", "))
}

func newTable(path, sheet string, header []string, data [][]string) *Table {
	t := &Table{Path: path, Sheet: sheet, columns: make(map[string]int, len(header))}
	for i, h := range header {
		h = NormalizeSpace(h)
		t.headers = append(t.headers, h)
		key := strings.ToLower(h)
		if _, dup := t.columns[key]; !dup && key != "" {
			t.columns[key] = i
		}
	}

	// Trailing blank rows are formatting leftovers, not records.
	end := len(data)
	for end > 0 && blank(data[end-1]) {
		end--
	}
	t.records = data[:end]
	return t
}

func blank(cells []string) bool {
	for _, c := range cells {
		if NormalizeSpace(c) != "" {
			return false
		}
	}
	return true
}

// Headers returns the normalized header row.
func (t *Table) Headers() []string {
	return append([]string(nil), t.headers...)
}

// Len reports the number of data rows.
func (t *Table) Len() int { return len(t.records) }

// Has reports whether a column exists (case-insensitive).
func (t *Table) Has(column string) bool {
	_, ok := t.columns[strings.ToLower(NormalizeSpace(column))]
	return ok
}

// Require checks that every named column exists.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s (sheet %q has %s)", ErrMissingColumn, strings.Join(missing, ", "), t.Sheet, strings.Join(t.headers, ", "))
	}
	return nil
}

func (t *Table) cell(record []string, column string) string {
	i, ok := t.columns[strings.ToLower(NormalizeSpace(column))]
	if !ok || i >= len(record) {
		return ""
	}
	return NormalizeSpace(record[i])
}

// Rows maps every data record onto a Row using the configured header names.
// Columns absent from the sheet yield empty values.
func (t *Table) Rows(cols config.ColumnConfig) []Row {
	out := make([]Row, 0, len(t.records))
	for i, rec := range t.records {
		out = append(out, Row{
			Index:      i + 1,
			Identifier: t.cell(rec, cols.Identifier),
			Name:       t.cell(rec, cols.Name),
			Status:     t.cell(rec, cols.Status),
			Phone:      t.cell(rec, cols.Phone),
			Email:      t.cell(rec, cols.Email),
			Latitude:   t.cell(rec, cols.Latitude),
			Longitude:  t.cell(rec, cols.Longitude),
			Source:     t.cell(rec, cols.Source),
			Notes:      t.cell(rec, cols.Notes),
		})
	}
	return out
}
