package fudi

import "strings"

// Unescape removes Pd file escapes (backslash-space) from s.
// This is for .pd patch text, not for wire values: see Sanitize.
func Unescape(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

// Escape protects spaces in s for a Pd patch file. Already escaped spaces
// are not escaped twice.
func Escape(s string) string {
	return strings.ReplaceAll(Unescape(s), " ", `\ `)
}
