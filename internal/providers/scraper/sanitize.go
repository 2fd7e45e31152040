package scraper

import (
	"html"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultSnippetLen bounds error-body excerpts.
const DefaultSnippetLen = 200

var stripPolicy = bluemonday.StrictPolicy()

// Snippet turns a response body into a short plain-text excerpt suitable for
// an error message. Markup is stripped and whitespace collapsed.
func Snippet(body []byte, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLen
	}
	if !utf8.Valid(body) {
		return "<binary>"
	}
	text := html.UnescapeString(string(stripPolicy.SanitizeBytes(body)))
	return TruncateText(NormalizeWhitespace(text), maxLen)
}
