// Package folio extracts XROM service folios from free-form chat text.
package folio

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// Prefix is the fixed prefix of every canonical folio.
	Prefix = "XROM-"
	// MinLength and MaxLength bound the canonical folio length.
	MinLength = 6
	MaxLength = 10
)

// The suffix may be spread over whitespace ("XROM 1 2 3"). The guards on
// either side stand in for a Unicode word boundary: the token may not touch a
// letter, digit or underscore, so "XROM-123456" never matches as "XROM-12345"
// and "éXROM-1" is not a folio. Case folding is limited to the prefix so the
// suffix class stays ASCII.
var folioPattern = regexp.MustCompile(
	`(?:^|[^\p{L}\p{N}_])(?i:X\s*R\s*O\s*M)\s*-?\s*((?:\s*[A-Za-z0-9]){1,5})(?:$|[^\p{L}\p{N}_])`)

var canonicalPattern = regexp.MustCompile(`^XROM-[A-Z0-9]{1,5}$`)

// normalize folds dash variants to '-' and every Unicode space to ' ', so the
// ASCII \s in folioPattern sees the same whitespace unicode.IsSpace does.
func normalize(r rune) rune {
	switch {
	case r == '–', r == '—', r == '−', r == '‑':
		return '-'
	case unicode.IsSpace(r):
		return ' '
	}
	return r
}

// Extract finds the first folio in raw and returns it in canonical form.
// It reports false when the text contains no acceptable folio.
func Extract(raw string) (string, bool) {
	text := strings.Map(normalize, raw)

	m := folioPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	suffix := strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))

	candidate := Prefix + suffix
	if len(candidate) < MinLength || len(candidate) > MaxLength {
		return "", false
	}
	return candidate, true
}

// IsCanonical reports whether s is already a canonical folio.
func IsCanonical(s string) bool {
	return canonicalPattern.MatchString(s)
}
