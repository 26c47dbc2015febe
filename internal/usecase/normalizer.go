package usecase

import (
	"log"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// TextNormalizer cleans the text cells and headers of the food table
type TextNormalizer struct {
	enableDebugLogging bool
}

var (
	// Whitespace on either side of sentence punctuation, parentheses and quotes
	punctuationSpacingPattern = regexp.MustCompile(`\s*([.!?;:()"])\s*`)

	// Whitespace before a comma ("FLOUR , SALT" -> "FLOUR, SALT")
	spaceBeforeCommaPattern = regexp.MustCompile(`\s+,`)
)

// NewTextNormalizer creates a new text normalizer
func NewTextNormalizer(enableDebugLogging bool) *TextNormalizer {
	return &TextNormalizer{
		enableDebugLogging: enableDebugLogging,
	}
}

// NormalizeText applies the full cleaning rule used for names, identifiers,
// serving sizes and column headers:
// drop invalid UTF-8 and control characters, collapse whitespace, tighten
// punctuation spacing and upper-case.
func (n *TextNormalizer) NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	original := s

	cleaned := dropInvalidUTF8(s)
	cleaned = strings.Map(func(r rune) rune {
		// tabs, newlines and other control whitespace are collapsed below
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = CollapseWhitespace(cleaned)
	cleaned = punctuationSpacingPattern.ReplaceAllString(cleaned, "$1")
	cleaned = spaceBeforeCommaPattern.ReplaceAllString(cleaned, ",")
	cleaned = cases.Upper(language.Und).String(cleaned)

	if n.enableDebugLogging && cleaned != original {
		log.Printf("[NORMALIZE] %q -> %q", original, cleaned)
	}
	return cleaned
}

// NormalizeLongText cleans free text such as ingredient lists, which only get
// whitespace collapsed
func (n *TextNormalizer) NormalizeLongText(s string) string {
	return CollapseWhitespace(dropInvalidUTF8(s))
}

// CollapseWhitespace replaces every run of Unicode whitespace (NBSP and
// vertical tab included) with one space and trims the ends
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dropInvalidUTF8 removes byte sequences that are not valid UTF-8
func dropInvalidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}
