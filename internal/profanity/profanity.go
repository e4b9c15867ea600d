// Package profanity scans subtitle text and spreadsheet cells for terms from
// a categorized lexicon, rewrites flagged units with operator-chosen
// replacements, and re-scans the result as a quality check.
//
// Usage:
//
//	s, _ := profanity.NewScanner(profanity.DefaultLexicon())
//	res, _ := s.Scan(content)
//	cleaned, _ := s.Clean(res.Findings, res.Content, map[string]string{"damn": "darn"})
//	remaining, _ := s.Verify(cleaned)
//
// Matching is whole-word and case-insensitive everywhere. Each line or cell
// yields at most one finding: the first lexicon entry that matches.
package profanity

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Finding is one flagged line or cell.
type Finding struct {
	Line     int      `json:"line,omitempty"`   // 1-based line number (text)
	Row      int      `json:"row,omitempty"`    // spreadsheet row number, header is row 1 (table)
	Column   string   `json:"column,omitempty"` // column header (table)
	Term     string   `json:"term"`
	Category Category `json:"category"`
	Text     string   `json:"text"` // the unit verbatim, trimmed
}

// Result is the outcome of a scan. An empty Findings slice means the content
// is clean.
type Result struct {
	Kind     Kind      `json:"kind"`
	Findings []Finding `json:"findings"`
	Content  Content   `json:"content"`
}

// span is one whole-word occurrence of a term, as UTF-8 byte offsets.
type span struct {
	start, end int
}

type matcher struct {
	entry Entry
	re    *regexp.Regexp
}

// Scanner is created once at startup from a lexicon. It holds no per-request
// state and is safe for concurrent use.
type Scanner struct {
	matchers []matcher
	byTerm   map[string]*regexp.Regexp // lower-cased term → pattern
}

// NewScanner compiles the lexicon in order.
func NewScanner(lex Lexicon) (*Scanner, error) {
	if len(lex) == 0 {
		return nil, fmt.Errorf("profanity: empty lexicon")
	}
	s := &Scanner{byTerm: make(map[string]*regexp.Regexp, len(lex))}
	for i, e := range lex {
		term := strings.TrimSpace(e.Term)
		if term == "" {
			return nil, fmt.Errorf("profanity: lexicon entry %d has an empty term", i+1)
		}
		e.Term = term
		re := termPattern(term)
		s.matchers = append(s.matchers, matcher{entry: e, re: re})
		key := strings.ToLower(term)
		if _, ok := s.byTerm[key]; !ok {
			s.byTerm[key] = re
		}
	}
	return s, nil
}

// Len returns the number of lexicon entries.
func (s *Scanner) Len() int { return len(s.matchers) }

func termPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
}

func (s *Scanner) pattern(term string) *regexp.Regexp {
	if re, ok := s.byTerm[strings.ToLower(term)]; ok {
		return re
	}
	return termPattern(term)
}

// Classify returns the first lexicon entry occurring in text as a whole word.
func (s *Scanner) Classify(text string) (Entry, bool) {
	for _, m := range s.matchers {
		if len(wordSpans(text, m.re)) > 0 {
			return m.entry, true
		}
	}
	return Entry{}, false
}

// Scan classifies every line (text) or every cell, row by row then column by
// column (table). Findings keep encounter order.
func (s *Scanner) Scan(c Content) (Result, error) {
	if err := c.validate(); err != nil {
		return Result{}, err
	}
	res := Result{Kind: c.Kind, Findings: []Finding{}, Content: c}

	switch c.Kind {
	case KindText:
		for i, line := range c.Lines {
			e, ok := s.Classify(line)
			if !ok {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				Line:     i + 1,
				Term:     e.Term,
				Category: e.Category,
				Text:     strings.TrimSpace(line),
			})
		}
	case KindTable:
		t := c.Table
		for r, row := range t.Rows {
			for col, cell := range row {
				e, ok := s.Classify(cell)
				if !ok {
					continue
				}
				res.Findings = append(res.Findings, Finding{
					Row:      r + 2,
					Column:   t.Columns[col],
					Term:     e.Term,
					Category: e.Category,
					Text:     strings.TrimSpace(cell),
				})
			}
		}
	}

	slog.Debug("profanity: scanned", "kind", c.Kind, "findings", len(res.Findings))
	return res, nil
}

// Clean returns a copy of original where, for every finding, each whole-word
// occurrence of the finding's term in its line or cell is replaced with
// replacements[term] (keys compared case-insensitively). Terms without a
// replacement are left as they are.
func (s *Scanner) Clean(findings []Finding, original Content, replacements map[string]string) (Content, error) {
	if err := original.validate(); err != nil {
		return Content{}, err
	}
	repl := make(map[string]string, len(replacements))
	for k, v := range replacements {
		repl[strings.ToLower(strings.TrimSpace(k))] = v
	}

	out := original.Clone()
	for _, f := range findings {
		with, ok := repl[strings.ToLower(f.Term)]
		if !ok {
			continue
		}
		re := s.pattern(f.Term)

		switch out.Kind {
		case KindText:
			idx := f.Line - 1
			if idx < 0 || idx >= len(out.Lines) {
				slog.Warn("profanity: finding outside content", "line", f.Line, "lines", len(out.Lines))
				continue
			}
			out.Lines[idx] = replaceWords(out.Lines[idx], re, with)
		case KindTable:
			r := f.Row - 2
			col, found := out.Table.Column(f.Column)
			if r < 0 || r >= len(out.Table.Rows) || !found {
				slog.Warn("profanity: finding outside content", "row", f.Row, "column", f.Column)
				continue
			}
			out.Table.Rows[r][col] = replaceWords(out.Table.Rows[r][col], re, with)
		}
	}
	return out, nil
}

// Verify re-scans cleaned content and returns the findings that survived.
func (s *Scanner) Verify(cleaned Content) ([]Finding, error) {
	res, err := s.Scan(cleaned)
	if err != nil {
		return nil, err
	}
	return res.Findings, nil
}

// replaceWords substitutes every whole-word match, working back to front so
// earlier offsets stay valid.
func replaceWords(text string, re *regexp.Regexp, with string) string {
	spans := wordSpans(text, re)
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		text = text[:sp.start] + with + text[sp.end:]
	}
	return text
}

// wordSpans returns the matches of re in text that are not part of a longer
// word. Results are in ascending order and never overlap.
func wordSpans(text string, re *regexp.Regexp) []span {
	var out []span
	for _, loc := range re.FindAllStringIndex(text, -1) {
		sp := span{start: loc[0], end: loc[1]}
		if sp.start >= sp.end {
			continue
		}
		// Reject partial word matches. If the character immediately before or
		// after the span is a word character, it is a substring of a longer word.
		if sp.start > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:sp.start])
			if isWordRune(r) {
				continue
			}
		}
		if sp.end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[sp.end:])
			if isWordRune(r) {
				continue
			}
		}
		out = append(out, sp)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
