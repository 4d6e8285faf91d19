// Package normalize provides title and description normalization used for
// provider queries and for deduplicating books across the corpus.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

// MaxDescriptionLength is the cap applied to provider-supplied descriptions.
const MaxDescriptionLength = 2000

var (
	// Series annotations in parentheses, e.g. "(Mistborn, #1)" or "(The Expanse #4)"
	parenSeriesPattern = regexp.MustCompile(`\([^)]*#\d+[^)]*\)`)
	// Standalone "#3" markers
	hashNumberPattern = regexp.MustCompile(`#\d+`)
	// ", Book 2" suffixes
	bookNumberPattern = regexp.MustCompile(`(?i),?\s*Book\s+\d+`)
	// "Vol. 3" markers
	volumePattern = regexp.MustCompile(`(?i)Vol\.\s*\d+`)

	whitespacePattern = regexp.MustCompile(`\s+`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
)

// Clean strips series and volume annotations from a title so different
// editions of the same work produce the same provider query. Titles with
// no annotations pass through unchanged apart from whitespace collapsing.
func Clean(title string) string {
	cleaned := parenSeriesPattern.ReplaceAllString(title, "")
	cleaned = hashNumberPattern.ReplaceAllString(cleaned, "")
	cleaned = bookNumberPattern.ReplaceAllString(cleaned, "")
	cleaned = volumePattern.ReplaceAllString(cleaned, "")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Key builds the case-insensitive, punctuation-insensitive dedup key for a
// (title, author) pair. All rows sharing a key belong to one book group.
func Key(title, author string) string {
	return squash(title) + "|" + squash(author)
}

// squash lowercases and drops everything that is not a letter or digit.
func squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TitleMatches reports whether a candidate result title matches the query
// title under normalization: one must contain the other. Used by provider
// adapters to pick the best candidate from a result set.
func TitleMatches(query, candidate string) bool {
	q, c := squash(query), squash(candidate)
	if q == "" || c == "" {
		return false
	}
	return strings.Contains(q, c) || strings.Contains(c, q)
}

// StripHTML removes markup tags and decodes HTML entities, collapsing the
// resulting whitespace. Providers routinely embed markup in descriptions.
func StripHTML(s string) string {
	stripped := htmlTagPattern.ReplaceAllString(s, " ")
	stripped = html.UnescapeString(stripped)
	stripped = whitespacePattern.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

// CleanDescription strips markup from a provider description and truncates
// it to MaxDescriptionLength runes.
func CleanDescription(s string) string {
	cleaned := StripHTML(s)
	runes := []rune(cleaned)
	if len(runes) > MaxDescriptionLength {
		return string(runes[:MaxDescriptionLength])
	}
	return cleaned
}
