// Package text provides the text normalization pass applied before phonemization.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text normalization.
const (
	whitespaceRegexPattern   = `[\s\v\x{85}\p{Z}]+`
	numericRangeRegexPattern = `(\d+)-(\d+)`
	numericRangeReplacement  = `$1 to $2`
	digitCommaRegexPattern   = `(\d),(\d)`
	digitCommaReplacement    = `$1$2`
)

// Typographic quotes folded to their ASCII equivalents.
const (
	leftSingleQuote  = "‘"
	rightSingleQuote = "’"
	leftDoubleQuote  = "“"
	rightDoubleQuote = "”"
)

// wordPrefixPattern matches the run of Unicode word characters an
// abbreviation may be glued to. Go's \b only knows ASCII word characters.
const wordPrefixPattern = `[\p{L}\p{M}\p{N}_]*`

// abbreviation pairs a pattern with its spoken expansion. The pattern also
// matches any word characters before the abbreviation so that occurrences
// inside a longer word can be left alone.
type abbreviation struct {
	pattern   *regexp.Regexp
	short     string
	expansion string
}

// Normalizer performs deterministic text cleanup. It is safe for concurrent use.
type Normalizer struct {
	whitespacePattern   *regexp.Regexp
	numericRangePattern *regexp.Regexp
	digitCommaPattern   *regexp.Regexp
	quoteReplacer       *strings.Replacer
	abbreviations       []abbreviation
}

// NewNormalizer compiles the patterns used by Normalize.
func NewNormalizer() *Normalizer {
	expansions := []struct{ short, long string }{
		{"Dr.", "Doctor"},
		{"Mr.", "Mister"},
		{"Mrs.", "Missus"},
		{"Ms.", "Miss"},
		{"St.", "Street"},
		{"Ave.", "Avenue"},
		{"Rd.", "Road"},
		{"Blvd.", "Boulevard"},
		{"etc.", "etcetera"},
	}

	abbreviations := make([]abbreviation, 0, len(expansions))
	for _, expansion := range expansions {
		abbreviations = append(abbreviations, abbreviation{
			pattern:   regexp.MustCompile(wordPrefixPattern + regexp.QuoteMeta(expansion.short)),
			short:     expansion.short,
			expansion: expansion.long,
		})
	}

	return &Normalizer{
		whitespacePattern:   regexp.MustCompile(whitespaceRegexPattern),
		numericRangePattern: regexp.MustCompile(numericRangeRegexPattern),
		digitCommaPattern:   regexp.MustCompile(digitCommaRegexPattern),
		quoteReplacer: strings.NewReplacer(
			leftSingleQuote, "'", rightSingleQuote, "'",
			leftDoubleQuote, `"`, rightDoubleQuote, `"`,
		),
		abbreviations: abbreviations,
	}
}

// Normalize cleans text for phonemization. The result is stable under a
// second application.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	normalizedText := n.whitespacePattern.ReplaceAllString(text, " ")
	normalizedText = n.quoteReplacer.Replace(normalizedText)
	normalizedText = n.expandAbbreviations(normalizedText)
	normalizedText = replaceUntilStable(n.numericRangePattern, normalizedText, numericRangeReplacement)
	normalizedText = replaceUntilStable(n.digitCommaPattern, normalizedText, digitCommaReplacement)

	return strings.TrimSpace(normalizedText)
}

func (n *Normalizer) expandAbbreviations(text string) string {
	for _, abbr := range n.abbreviations {
		text = abbr.pattern.ReplaceAllStringFunc(text, func(match string) string {
			if len(match) != len(abbr.short) {
				return match
			}

			return abbr.expansion
		})
	}

	return text
}

// replaceUntilStable reapplies pattern because matches that share a digit,
// as in "1,2,3" or "1-2-3", are skipped by a single non-overlapping pass.
func replaceUntilStable(pattern *regexp.Regexp, text, replacement string) string {
	for {
		replaced := pattern.ReplaceAllString(text, replacement)
		if replaced == text {
			return replaced
		}

		text = replaced
	}
}
