package catalog

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	numberedMarker   = regexp.MustCompile(`\(\d+\)`)
	numberedSplit    = regexp.MustCompile(`\(\d+\)\s*`)
	sentenceBoundary = regexp.MustCompile(`\.\s+`)
)

// Split breaks one packed descriptor field into atomic learning descriptors.
//
// Numbered markers such as "(1)" take precedence over sentence boundaries.
// A sentence boundary is a period, whitespace, then an upper-case letter; the
// period consumed by the split is restored on every fragment but the last.
// Empty or whitespace-only input yields an empty slice.
func Split(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}

	if numberedMarker.MatchString(raw) {
		return trimNonEmpty(numberedSplit.Split(raw, -1))
	}

	fragments := trimNonEmpty(splitSentences(raw))
	if len(fragments) > 1 {
		for i := 0; i < len(fragments)-1; i++ {
			if !strings.HasSuffix(fragments[i], ".") {
				fragments[i] += "."
			}
		}
		return fragments
	}

	return []string{raw}
}

// SplitValue splits a decoded JSON descriptor slot. Strings go through Split,
// arrays of strings are already atomic and only trimmed, anything else is
// treated as absent.
func SplitValue(v any) []string {
	switch val := v.(type) {
	case string:
		return Split(val)
	case []string:
		return trimNonEmpty(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return []string{}
	}
}

// splitSentences cuts s at every ".<space>" that is followed by an upper-case
// rune. The period itself is dropped with the separator.
func splitSentences(s string) []string {
	var parts []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(s, -1) {
		next, _ := utf8.DecodeRuneInString(s[loc[1]:])
		if !unicode.IsUpper(next) {
			continue
		}
		parts = append(parts, s[start:loc[0]])
		start = loc[1]
	}
	return append(parts, s[start:])
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
