package util

import "strings"

// ClampRunes ensures a string does not exceed max runes.
func ClampRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// Ellipsize is ClampRunes with a trailing "…" when the string was cut.
func Ellipsize(s string, max int) string {
	out := ClampRunes(s, max)
	if len(out) < len(s) {
		return out + "…"
	}
	return out
}

// StripCodeFences removes a ``` wrapper, with or without a language tag, that models put
// around their replies.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
		s = s[nl+1:] // language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
