package domain

import (
	"net/url"
	"strings"
	"unicode"
)

// DedupKey identifies a hit across sources: the case-folded host+path of
// the link, falling back to the normalized title when no link is present.
// The same key deduplicates across providers and across the internal and
// external evidence tiers.
func DedupKey(h SearchHit) string {
	if h.Link != "" {
		if u, err := url.Parse(h.Link); err == nil && u.Host != "" {
			return "link:" + strings.ToLower(u.Host+strings.TrimSuffix(u.Path, "/"))
		}
	}
	if t := normalizeTitle(h.Title); t != "" {
		return "title:" + t
	}
	if h.DocID != "" {
		return "doc:" + h.DocID
	}
	return "link:" + strings.ToLower(h.Link)
}

// normalizeTitle lowercases and strips punctuation for title-based dedup.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
