// Package sanitize normalises free-text menu fields before they are stored.
// Every function is pure and total: there is no input it rejects.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	routeDisallowed = regexp.MustCompile(`[^a-z0-9._-]`)
	routeDots       = regexp.MustCompile(`\.{2,}`)
)

// Fields groups the sanitisable values of a menu item. Nil pointers are left alone.
type Fields struct {
	Name      string
	URL       *string
	RouteName *string
}

// Apply sanitises every set field in place.
func (f *Fields) Apply() {
	f.Name = Name(f.Name)
	if f.URL != nil {
		v := URL(*f.URL)
		f.URL = &v
	}
	if f.RouteName != nil {
		v := RouteName(*f.RouteName)
		f.RouteName = &v
	}
}

// Name strips markup and control characters and folds whitespace.
func Name(value string) string {
	if value == "" {
		return value
	}
	// Whitespace is folded before control characters are removed so that
	// newlines become separators instead of vanishing.
	value = StripTags(value)
	value = whitespaceRuns.ReplaceAllString(value, " ")
	value = controlChars.ReplaceAllString(value, "")
	return strings.TrimSpace(value)
}

// URL keeps absolute http(s) links and turns everything else into a
// site-relative path with exactly one leading slash.
func URL(value string) string {
	if value == "" {
		return value
	}
	value = strings.TrimSpace(value)
	if !isExternal(value) {
		value = "/" + strings.TrimLeft(value, "/")
	}
	return StripTags(value)
}

// RouteName lowercases and restricts the value to [a-z0-9._-], using dots
// as the separator for anything else.
func RouteName(value string) string {
	if value == "" {
		return value
	}
	value = strings.ToLower(strings.TrimSpace(value))
	value = routeDisallowed.ReplaceAllString(value, ".")
	value = routeDots.ReplaceAllString(value, ".")
	return strings.Trim(value, ".")
}

// StripTags drops every tag and comment and keeps text content verbatim.
func StripTags(value string) string {
	if !strings.ContainsAny(value, "<>") {
		return value
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(value))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is the result.
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}

func isExternal(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsExternal reports whether a sanitised URL points off-site.
func IsExternal(url *string) bool {
	return url != nil && isExternal(*url)
}
