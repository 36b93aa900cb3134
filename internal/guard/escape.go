package guard

import (
	"fmt"
	"net/url"
	"strings"
)

// EscapeContext selects the output context for Escape.
type EscapeContext string

const (
	ContextHTML       EscapeContext = "html"
	ContextAttribute  EscapeContext = "attribute"
	ContextJavaScript EscapeContext = "javascript"
	ContextCSS        EscapeContext = "css"
	ContextURL        EscapeContext = "url"
)

// htmlEntities maps the characters that break out of HTML text content to
// entities a standard decoder reverses exactly.
var htmlEntities = map[rune]string{
	'&':  "&amp;",
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&quot;",
	'\'': "&#39;",
	'/':  "&#47;",
}

// attributeEntities extends the HTML map with characters that terminate
// unquoted attribute values.
var attributeEntities = map[rune]string{
	'&':  "&amp;",
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&quot;",
	'\'': "&#39;",
	'/':  "&#47;",
	'=':  "&#61;",
	'`':  "&#96;",
}

// jsEscapes maps characters that break out of a JavaScript string literal.
// Angle brackets and ampersand become unicode escapes so an escaped value
// can never form a closing script tag inside an inline script body.
var jsEscapes = map[rune]string{
	'\\': `\\`,
	'\'': `\'`,
	'"':  `\"`,
	'\n': `\n`,
	'\r': `\r`,
	'\t': `\t`,
	'<':  `\u003c`,
	'>':  `\u003e`,
	'&':  `\u0026`,
	'/':  `\/`,
}

// Escape translates text for safe inclusion in the given output context.
// Unknown contexts fall back to HTML escaping, the most conservative of the
// reversible tables. Pure function, never fails.
func Escape(text string, context EscapeContext) string {
	switch context {
	case ContextHTML:
		return escapeWithTable(text, htmlEntities)
	case ContextAttribute:
		return escapeWithTable(text, attributeEntities)
	case ContextJavaScript:
		return escapeJS(text)
	case ContextCSS:
		return escapeCSS(text)
	case ContextURL:
		return url.QueryEscape(text)
	default:
		return escapeWithTable(text, htmlEntities)
	}
}

func escapeWithTable(text string, table map[rune]string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := table[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeJS(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := jsEscapes[r]; ok {
			b.WriteString(repl)
			continue
		}
		if r < 0x20 {
			b.WriteString(fmt.Sprintf(`\u%04x`, r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeCSS drops every character outside the identifier allow-list. This
// table is a filter, not a translation: CSS output has no reversible escape
// the rest of the pipeline could rely on.
func escapeCSS(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
