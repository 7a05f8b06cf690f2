// Package normalize holds the canonical forms used when comparing and
// storing identities and free text.
package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// UserID trims an identifier taken off the wire. Ids are hex ObjectIDs on
// the server, so case is preserved.
func UserID(id string) string {
	return strings.TrimSpace(id)
}

// Text trims message text. An empty result means the text must not be sent.
func Text(s string) string {
	return strings.TrimSpace(s)
}

// Skills splits a comma separated skill list, dropping blanks and repeats
// while keeping first-seen order.
func Skills(csv string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(csv, ",") {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
