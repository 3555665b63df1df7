package util

import (
	"regexp"
)

var codeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// IsValidCode reports whether s has the session code shape: six uppercase
// letters or digits.
func IsValidCode(s string) bool {
	return codeRegex.MatchString(s)
}
