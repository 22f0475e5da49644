package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// schemePattern matches an RFC 3986 scheme followed by "://".
var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// NormalizeURL converts user-entered location text into canonical absolute form.
// Examples:
//
//	"example.com/docs"     -> "https://example.com/docs"
//	"http://example.com"   -> "http://example.com"
//	"   "                  -> ""
func NormalizeURL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if schemePattern.MatchString(trimmed) {
		return trimmed
	}
	return "https://" + trimmed
}

// ValidateDraft trims and normalizes a draft, rejecting it when either field
// ends up empty or the location has no host.
func ValidateDraft(d Draft) (Draft, error) {
	clean := Draft{
		Title: strings.TrimSpace(d.Title),
		URL:   NormalizeURL(d.URL),
	}
	if clean.Title == "" || clean.URL == "" {
		return Draft{}, ErrValidation
	}

	u, err := url.Parse(clean.URL)
	if err != nil || u.Host == "" {
		return Draft{}, fmt.Errorf("%w (invalid URL %q)", ErrValidation, d.URL)
	}

	return clean, nil
}
