package profanity

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gonkalabs/subkit/internal/sheet"
	"github.com/gonkalabs/subkit/internal/textenc"
)

// Kind is the structural shape of scanned content.
type Kind string

const (
	KindText  Kind = "text"  // sequential lines (.srt, .txt)
	KindTable Kind = "table" // spreadsheet cells (.xlsx)
)

// UnsupportedFormatError is returned for content that is neither sequential
// text nor a table.
type UnsupportedFormatError struct {
	Name string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("profanity: unsupported format %q", e.Name)
}

// KindForFile picks the content kind from a file extension.
func KindForFile(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".srt", ".txt":
		return KindText, nil
	case ".xlsx":
		return KindTable, nil
	}
	return "", &UnsupportedFormatError{Name: name}
}

// Content is a working copy of a scanned file.
type Content struct {
	Kind  Kind         `json:"kind"`
	Lines []string     `json:"lines,omitempty"`
	Table *sheet.Table `json:"table,omitempty"`
}

// TextContent wraps sequential lines.
func TextContent(lines []string) Content {
	return Content{Kind: KindText, Lines: lines}
}

// TableContent wraps a spreadsheet table.
func TableContent(t sheet.Table) Content {
	return Content{Kind: KindTable, Table: &t}
}

// Clone returns a deep copy, so cleaning never touches the original.
func (c Content) Clone() Content {
	out := Content{Kind: c.Kind}
	if c.Lines != nil {
		out.Lines = append([]string(nil), c.Lines...)
	}
	if c.Table != nil {
		t := c.Table.Clone()
		out.Table = &t
	}
	return out
}

func (c Content) validate() error {
	switch c.Kind {
	case KindText:
		return nil
	case KindTable:
		if c.Table == nil {
			return fmt.Errorf("profanity: table content without table")
		}
		seen := make(map[string]bool, len(c.Table.Columns))
		for _, col := range c.Table.Columns {
			if seen[col] {
				return fmt.Errorf("profanity: duplicate column header %q", col)
			}
			seen[col] = true
		}
		for i, row := range c.Table.Rows {
			if len(row) != len(c.Table.Columns) {
				return fmt.Errorf("profanity: table row %d has %d cells, want %d", i+2, len(row), len(c.Table.Columns))
			}
		}
		return nil
	}
	return &UnsupportedFormatError{Name: string(c.Kind)}
}

// LoadContent parses an uploaded file according to its extension.
func LoadContent(name string, data []byte, dec *textenc.Decoder) (Content, error) {
	kind, err := KindForFile(name)
	if err != nil {
		return Content{}, err
	}
	if kind == KindTable {
		t, err := sheet.Read(bytes.NewReader(data))
		if err != nil {
			return Content{}, err
		}
		return TableContent(t), nil
	}
	text, _, err := dec.Decode(data)
	if err != nil {
		return Content{}, err
	}
	return TextContent(textenc.SplitLines(text)), nil
}

// Encode writes content in its file format: UTF-8 text or an .xlsx workbook.
func Encode(w io.Writer, c Content) error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Kind == KindTable {
		return sheet.Write(w, *c.Table)
	}
	_, err := io.WriteString(w, textenc.JoinLines(c.Lines))
	return err
}
