package caption

import "regexp"

// DefaultMarkers returns the annotation patterns stripped from spoken lines:
// bracketed, parenthetical, braced and angle-bracketed spans, text between
// music notes or hashes, and a leading caption/subtitle label.
func DefaultMarkers() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`\[[^\]]*\]`),
		regexp.MustCompile(`\([^)]*\)`),
		regexp.MustCompile(`\{[^}]*\}`),
		regexp.MustCompile(`<[^>]*>`),
		regexp.MustCompile(`♪[^♪]*♪`),
		regexp.MustCompile(`♫[^♫]*♫`),
		regexp.MustCompile(`#[^#]*#`),
		regexp.MustCompile(`(?i)^\s*(?:cc|captions?|subtitles?)\s*:\s*`),
	}
}
