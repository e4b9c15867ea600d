package profanity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Category is a profanity severity class. The declaration order is the
// order the built-in lexicon is searched in.
type Category int

const (
	Mild Category = iota
	Moderate
	Strong
	Religious
)

var categoryNames = [...]string{"mild", "moderate", "strong", "religious"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory accepts the names returned by String, case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("profanity: unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Entry is one lexicon term and the category it is reported under.
type Entry struct {
	Category Category `json:"category"`
	Term     string   `json:"term"`
}

// Lexicon is searched in slice order; the first matching entry wins, so an
// earlier entry takes precedence over any later one.
type Lexicon []Entry

// DefaultLexicon is the built-in term list, ordered mild to religious.
func DefaultLexicon() Lexicon {
	lex := Lexicon{}
	add := func(c Category, terms ...string) {
		for _, t := range terms {
			lex = append(lex, Entry{Category: c, Term: t})
		}
	}
	add(Mild, "damn", "hell", "crap", "bloody", "bugger", "sod", "arse")
	add(Moderate, "ass", "bitch", "bastard", "piss", "pissed", "dick", "prick", "cock", "wanker", "slut")
	add(Strong, "fuck", "fucking", "fucker", "motherfucker", "shit", "bullshit", "asshole", "cunt", "twat")
	add(Religious, "goddamn", "goddamned", "jesus christ", "jesus", "christ", "oh my god", "for god's sake")
	return lex
}

// LoadLexicon reads a JSON array of {"category": ..., "term": ...} objects.
// File order is kept as precedence order.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profanity: read lexicon: %w", err)
	}
	var lex Lexicon
	if err := json.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("profanity: parse lexicon %s: %w", path, err)
	}
	if len(lex) == 0 {
		return nil, fmt.Errorf("profanity: lexicon %s is empty", path)
	}
	return lex, nil
}
