// Package export turns a dialogue spreadsheet into a timed subtitle file.
// Each row of the selected language column becomes one cue; cues are spaced
// three seconds apart and stay on screen for two.
package export

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gonkalabs/subkit/internal/sheet"
)

const (
	cueSpacing  = 3 * time.Second
	cueDuration = 2 * time.Second
)

var columns = map[string]string{
	"ov":      "OV DIALOGUES",
	"spanish": "SPANISH SUBTITLES",
	"english": "ENGLISH SUBTITLES",
}

// Languages returns the accepted language keys, sorted.
func Languages() []string {
	out := make([]string, 0, len(columns))
	for k := range columns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ColumnFor returns the spreadsheet header for a language key.
func ColumnFor(language string) (string, bool) {
	c, ok := columns[strings.ToLower(strings.TrimSpace(language))]
	return c, ok
}

// ColumnError reports an unknown language or a sheet lacking its column.
type ColumnError struct {
	Language string
	Column   string
}

func (e *ColumnError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("export: unknown language %q", e.Language)
	}
	return fmt.Sprintf("export: column %q not found in file", e.Column)
}

// SRT renders the language column of t as subtitle text.
func SRT(t sheet.Table, language string) ([]byte, error) {
	col, ok := ColumnFor(language)
	if !ok {
		return nil, &ColumnError{Language: language}
	}
	idx, ok := t.Column(col)
	if !ok {
		return nil, &ColumnError{Language: language, Column: col}
	}

	var buf bytes.Buffer
	for i, row := range t.Rows {
		n := i + 1
		start := time.Duration(n) * cueSpacing
		text := ""
		if idx < len(row) {
			text = strings.TrimSpace(row[idx])
		}
		buf.WriteString(strconv.Itoa(n))
		buf.WriteByte('\n')
		buf.WriteString(formatTime(start) + " --> " + formatTime(start+cueDuration))
		buf.WriteByte('\n')
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

// Convert reads a workbook from r and writes the subtitle file to w.
func Convert(r io.Reader, w io.Writer, language string) error {
	t, err := sheet.Read(r)
	if err != nil {
		return err
	}
	out, err := SRT(t, language)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// OutputName is "<input base>_<language>.srt".
func OutputName(inputName, language string) string {
	base := filepath.Base(inputName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_" + strings.ToLower(strings.TrimSpace(language)) + ".srt"
}

func formatTime(d time.Duration) string {
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms := int(d / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
