package guard

import (
	"regexp"
	"strings"
)

var (
	scriptTagPattern = regexp.MustCompile(`(?is)<script[^>]*>.*?</script\s*>|<script[^>]*/?>`)
	markupPattern    = regexp.MustCompile(`<[^>]*>`)
	eventAttrPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// dangerousSubstrings are removed case-insensitively regardless of whether
// markup is allowed.
var dangerousSubstrings = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// Sanitize strips null bytes, removes known dangerous substrings, and strips
// markup unless allowHTML is set. Pure function, never fails.
func Sanitize(text string, allowHTML bool) string {
	out := strings.ReplaceAll(text, "\x00", "")

	// Script tags go first so their bodies do not survive markup stripping
	// when allowHTML is set.
	out = scriptTagPattern.ReplaceAllString(out, "")

	if !allowHTML {
		out = markupPattern.ReplaceAllString(out, "")
	}

	lower := strings.ToLower(out)
	for _, needle := range dangerousSubstrings {
		for {
			i := strings.Index(lower, needle)
			if i < 0 {
				break
			}
			out = out[:i] + out[i+len(needle):]
			lower = lower[:i] + lower[i+len(needle):]
		}
	}

	out = eventAttrPattern.ReplaceAllString(out, "")
	return out
}
