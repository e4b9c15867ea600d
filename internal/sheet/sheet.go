// Package sheet reads and writes spreadsheet tables. The first row of the
// first worksheet holds the column headers.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidWorkbook is returned for data that is not a readable .xlsx file.
var ErrInvalidWorkbook = errors.New("sheet: not a readable workbook")

// Table is a header row plus data rows. Every row has len(Columns) cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Column returns the index of the column with the given header.
func (t Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// Read parses the first worksheet of an .xlsx workbook.
func Read(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("%w: no worksheets", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("sheet: read %q: %w", sheets[0], err)
	}
	return fromRows(rows), nil
}

// ReadFile is Read for a path on disk.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("sheet: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func fromRows(rows [][]string) Table {
	if len(rows) == 0 {
		return Table{}
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	t := Table{Columns: make([]string, width)}
	for i := range t.Columns {
		var h string
		if i < len(rows[0]) {
			h = strings.TrimSpace(rows[0][i])
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		t.Columns[i] = h
	}
	t.Columns = uniqueHeaders(t.Columns)
	for _, r := range rows[1:] {
		cells := make([]string, width)
		copy(cells, r)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// uniqueHeaders renames repeated headers to "<name>.1", "<name>.2", ... so
// every column can be addressed by its header.
func uniqueHeaders(cols []string) []string {
	seen := make(map[string]int, len(cols))
	out := make([]string, len(cols))
	for i, name := range cols {
		h := name
		for n := seen[h]; n > 0; n = seen[h] {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		}
		seen[h]++
		out[i] = h
	}
	return out
}

// Write serializes t as a single-sheet .xlsx workbook.
func Write(w io.Writer, t Table) error {
	f, err := build(t)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("sheet: write: %w", err)
	}
	return nil
}

// WriteFile is Write to a path on disk.
func WriteFile(path string, t Table) error {
	f, err := build(t)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("sheet: save %s: %w", path, err)
	}
	return nil
}

func build(t Table) (*excelize.File, error) {
	f := excelize.NewFile()
	name := f.GetSheetName(0)
	if err := setRow(f, name, 1, t.Columns); err != nil {
		f.Close()
		return nil, err
	}
	for i, r := range t.Rows {
		if err := setRow(f, name, i+2, r); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func setRow(f *excelize.File, sheetName string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("sheet: row %d: %w", row, err)
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("sheet: row %d: %w", row, err)
	}
	return nil
}
