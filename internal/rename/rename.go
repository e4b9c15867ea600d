// Package rename names Word documents after their heading.
package rename

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/gonkalabs/subkit/internal/storage"
)

// ErrInvalidDocument is returned for files that are not readable .docx.
var ErrInvalidDocument = errors.New("rename: not a readable Word document")

// maxSuffix bounds the search for a free "<name> (n).docx".
const maxSuffix = 1000

// Header returns the text of the first non-blank paragraph of a .docx file.
func Header(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDocument, filepath.Base(path), err)
	}
	defer r.Close()
	return FirstParagraph(r.Editable().GetContent())
}

// FirstParagraph extracts the first paragraph with visible text from a
// WordprocessingML document body. Runs are concatenated; tabs and breaks
// become spaces.
func FirstParagraph(documentXML string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(documentXML))
	var (
		b      strings.Builder
		inPara bool
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				b.Reset()
			case "t":
				inText = inPara
			case "tab", "br":
				if inPara {
					b.WriteByte(' ')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara = false
				if s := strings.Join(strings.Fields(b.String()), " "); s != "" {
					return s, nil
				}
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

// File renames the document at path after its heading, inside the same
// directory, and returns the new path. A document without a heading keeps
// its name. Existing files are never overwritten.
func File(path string) (string, error) {
	header, err := Header(path)
	if err != nil {
		return "", err
	}
	if header == "" {
		return path, nil
	}
	dir := filepath.Dir(path)
	header = strings.NewReplacer("/", "-", "\\", "-").Replace(header)
	base := strings.TrimSuffix(storage.SanitizeName(header+".docx"), ".docx")

	target, err := freeName(dir, base, path)
	if err != nil {
		return "", err
	}
	if target == path {
		return path, nil
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}
	return target, nil
}

func freeName(dir, base, current string) (string, error) {
	for i := 0; i < maxSuffix; i++ {
		name := base + ".docx"
		if i > 0 {
			name = base + " (" + strconv.Itoa(i) + ").docx"
		}
		candidate := filepath.Join(dir, name)
		if candidate == current {
			return candidate, nil
		}
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("rename: no free name for %q", base)
}
