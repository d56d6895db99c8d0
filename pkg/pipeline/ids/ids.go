// Package ids validates the opaque id shapes the remote store protocol
// uses (spec.md §6): page ids match a UUID, either dashed or the
// dashless 32-hex variant. Used by the property codec (relation/people
// values).
package ids

import "regexp"

var pageIDPattern = regexp.MustCompile(`^(?:[0-9a-f]{8}-(?:[0-9a-f]{4}-){3}[0-9a-f]{12}|[0-9a-f]{32})$`)

// ValidPageID reports whether s matches the accepted page-id shapes.
func ValidPageID(s string) bool {
	return pageIDPattern.MatchString(s)
}

// ValidOpaqueRef reports whether s is a well-formed opaque reference —
// used for people/user ids, which the store defines less strictly than
// page ids but which must still be non-empty and free of whitespace.
func ValidOpaqueRef(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			return false
		}
	}
	return true
}
