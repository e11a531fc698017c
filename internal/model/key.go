package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var keyFolder = cases.Fold()

// CacheKey normalizes an identifier into the canonical cache-key form used
// by both tiers: NFKC-normalized, case-folded, with runs of whitespace,
// commas, and slashes collapsed to single hyphens. "Melbourne, FL" and
// "melbourne  fl" map to the same key.
func CacheKey(id string) string {
	s := norm.NFKC.String(strings.TrimSpace(id))
	s = keyFolder.String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == ',' || r == '/' || r == '-':
			if b.Len() > 0 {
				pendingSep = true
			}
		default:
			if pendingSep {
				b.WriteByte('-')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
