// Package extract turns fetched ordinance documents into candidate
// district records.
package extract

import (
	"regexp"
	"strings"
)

// Section is one addressable unit of an ordinance document.
type Section struct {
	Ref   string // e.g. "Sec. 30-28" or the heading text
	Title string
	Body  string
}

var (
	// Municipal codes address sections as "Sec. 30-28." or "Section 62-1541".
	secHeadingRe = regexp.MustCompile(`(?m)^\s*(?:#{1,4}\s*)?((?:Sec\.|Section|SECTION)\s+\d(?:[\d.\-]*\d)?)\.?\s*(.*)$`)
	// Markdown headings from Firecrawl output.
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,4}\s+(.+)$`)
)

// SplitSections divides a document into sections at numbered section
// headings, falling back to markdown headings. A document with no
// recognizable headings comes back as a single unnamed section.
func SplitSections(doc string) []Section {
	sections := splitAt(doc, secHeadingRe, true)
	if len(sections) > 0 {
		return sections
	}
	sections = splitAt(doc, mdHeadingRe, false)
	if len(sections) > 0 {
		return sections
	}
	body := strings.TrimSpace(doc)
	if body == "" {
		return nil
	}
	return []Section{{Body: body}}
}

func splitAt(doc string, re *regexp.Regexp, numbered bool) []Section {
	locs := re.FindAllStringSubmatchIndex(doc, -1)
	if len(locs) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(locs))
	for i, loc := range locs {
		end := len(doc)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}

		var ref, title string
		if numbered {
			ref = strings.TrimSpace(doc[loc[2]:loc[3]])
			title = strings.TrimSpace(doc[loc[4]:loc[5]])
		} else {
			title = strings.TrimSpace(doc[loc[2]:loc[3]])
			ref = title
		}

		body := strings.TrimSpace(doc[loc[1]:end])
		sections = append(sections, Section{Ref: ref, Title: title, Body: body})
	}
	return sections
}

// FindSection returns the section whose ref matches, ignoring trailing
// punctuation and case. Returns nil when absent.
func FindSection(sections []Section, ref string) *Section {
	want := normalizeRef(ref)
	if want == "" {
		return nil
	}
	for i := range sections {
		if normalizeRef(sections[i].Ref) == want {
			return &sections[i]
		}
	}
	return nil
}

func normalizeRef(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	ref = strings.TrimSuffix(ref, ".")
	for _, prefix := range []string{"sec. ", "section "} {
		if rest, ok := strings.CutPrefix(ref, prefix); ok {
			return rest
		}
	}
	return ref
}
