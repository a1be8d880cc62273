// Package urlutil builds absolute links from the configured base URL.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize trims whitespace and trailing slashes from a base URL.
func Normalize(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// BuildAbsolute joins base and the given path segments, escaping each
// segment. An empty base yields "".
func BuildAbsolute(base string, segments ...string) string {
	base = Normalize(base)
	if base == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(base)
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// NoteHTML returns the link to a note's rendered HTML page.
func NoteHTML(base, noteID string) string {
	return BuildAbsolute(base, "notes", noteID, "html")
}
