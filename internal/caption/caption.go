// Package caption strips closed-caption annotations from subtitle text and
// renumbers the surviving blocks.
//
// Normalization runs two passes over the lines of a subtitle file:
//
//  1. Strip: timing lines are kept and open a text region, number-only lines
//     are dropped, blank lines are kept. The first text line after a timing
//     line has every marker pattern removed and is dropped when nothing is
//     left. Later lines of the same block are passed through untouched.
//  2. Renumber: each timing line becomes a block numbered from 1, followed by
//     its non-blank text lines and one blank separator. Anything outside a
//     block is dropped.
//
// Lines that fit no expected shape produce Warnings, never errors.
package caption

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gonkalabs/subkit/internal/textenc"
)

var (
	reTiming = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}$`)
	reDigits = regexp.MustCompile(`^\d+$`)
	reSpaces = regexp.MustCompile(`\s{2,}`)
)

// Warning is a non-fatal report about a line that did not fit a subtitle
// block (a malformed block).
type Warning struct {
	Line   int // 1-based line number in the input
	Text   string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Text)
}

// Result is the output of Normalize.
type Result struct {
	Lines    []string
	Warnings []Warning
	Blocks   int
}

// Normalizer holds the marker patterns. It is safe for concurrent use.
type Normalizer struct {
	markers []*regexp.Regexp
}

// New creates a Normalizer. A nil slice selects DefaultMarkers.
func New(markers []*regexp.Regexp) *Normalizer {
	if markers == nil {
		markers = DefaultMarkers()
	}
	return &Normalizer{markers: markers}
}

type strippedLine struct {
	text string
	src  int
}

// IsTiming reports whether line is a "HH:MM:SS,mmm --> HH:MM:SS,mmm" range.
func IsTiming(line string) bool {
	return reTiming.MatchString(strings.TrimSpace(line))
}

// Normalize runs the strip and renumber passes over lines.
func (n *Normalizer) Normalize(lines []string) Result {
	var res Result
	stripped := n.strip(lines)
	res.Lines = renumber(stripped, &res)
	return res
}

func (n *Normalizer) strip(lines []string) []strippedLine {
	out := make([]strippedLine, 0, len(lines))
	inText := false
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case reTiming.MatchString(trimmed):
			out = append(out, strippedLine{text: line, src: i + 1})
			inText = true
		case reDigits.MatchString(trimmed):
			// stale sequence number, regenerated later
		case trimmed == "":
			out = append(out, strippedLine{text: "", src: i + 1})
		case inText:
			// Only the first text line of a block is stripped.
			inText = false
			if cleaned := n.StripMarkers(line); cleaned != "" {
				out = append(out, strippedLine{text: cleaned, src: i + 1})
			}
		default:
			out = append(out, strippedLine{text: line, src: i + 1})
		}
	}
	return out
}

// StripMarkers removes every annotation marker from line and tidies the
// whitespace left behind.
func (n *Normalizer) StripMarkers(line string) string {
	for _, re := range n.markers {
		line = re.ReplaceAllString(line, "")
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
}

func renumber(lines []strippedLine, res *Result) []string {
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		l := lines[i]
		if !IsTiming(l.text) {
			if strings.TrimSpace(l.text) != "" {
				res.Warnings = append(res.Warnings, Warning{Line: l.src, Text: l.text, Reason: "dropped line outside block"})
			}
			i++
			continue
		}
		res.Blocks++
		out = append(out, strconv.Itoa(res.Blocks), strings.TrimSpace(l.text))
		i++
		for i < len(lines) {
			text := lines[i].text
			if strings.TrimSpace(text) == "" || IsTiming(text) {
				break
			}
			out = append(out, text)
			i++
		}
		out = append(out, "")
	}
	return out
}

// Render serializes normalized lines, each terminated by "\n".
func Render(lines []string) []byte {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// NormalizeBytes decodes data, normalizes it and renders the result.
// It fails only with *textenc.DecodingError.
func (n *Normalizer) NormalizeBytes(dec *textenc.Decoder, data []byte) ([]byte, Result, error) {
	text, _, err := dec.Decode(data)
	if err != nil {
		return nil, Result{}, err
	}
	res := n.Normalize(textenc.SplitLines(text))
	return Render(res.Lines), res, nil
}
