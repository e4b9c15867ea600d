// Package textenc decodes uploaded text files. UTF-8 is tried first, then a
// configurable list of legacy single-byte encodings.
package textenc

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultEncodings is the fallback order used when none is configured.
var DefaultEncodings = []string{"utf-8", "windows-1252", "iso-8859-1"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodingError reports input that could not be decoded under any of the
// attempted encodings.
type DecodingError struct {
	Tried []string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("textenc: input is not decodable as %s", strings.Join(e.Tried, ", "))
}

type candidate struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// Decoder tries each configured encoding in order.
// It is safe for concurrent use.
type Decoder struct {
	candidates []candidate
}

// NewDecoder resolves IANA encoding names (e.g. "utf-8", "windows-1252").
func NewDecoder(names []string) (*Decoder, error) {
	if len(names) == 0 {
		names = DefaultEncodings
	}
	d := &Decoder{}
	for _, raw := range names {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		enc, err := ianaindex.IANA.Encoding(raw)
		if err != nil {
			return nil, fmt.Errorf("textenc: unknown encoding %q: %w", raw, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("textenc: encoding %q is not supported", raw)
		}
		name, err := ianaindex.IANA.Name(enc)
		if err != nil {
			name = raw
		}
		c := candidate{name: name, enc: enc}
		if strings.EqualFold(name, "UTF-8") {
			c.enc = nil
		}
		d.candidates = append(d.candidates, c)
	}
	if len(d.candidates) == 0 {
		return nil, fmt.Errorf("textenc: no encodings configured")
	}
	return d, nil
}

// Names returns the canonical names in attempt order.
func (d *Decoder) Names() []string {
	out := make([]string, 0, len(d.candidates))
	for _, c := range d.candidates {
		out = append(out, c.name)
	}
	return out
}

// Decode returns the text and the name of the encoding that accepted it.
// Input containing NUL bytes is binary and always rejected.
func (d *Decoder) Decode(data []byte) (string, string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", "", &DecodingError{Tried: d.Names()}
	}
	for _, c := range d.candidates {
		if c.enc == nil {
			b := bytes.TrimPrefix(data, utf8BOM)
			if utf8.Valid(b) {
				return string(b), c.name, nil
			}
			continue
		}
		out, err := c.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), c.name, nil
	}
	return "", "", &DecodingError{Tried: d.Names()}
}

// SplitLines splits on "\n" only. A trailing "\r" stays on its line so that
// joining the result with "\n" reproduces the input.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
