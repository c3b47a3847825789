package http

import (
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxTeamNameLength = 128
)

// ValidTeamName checks a team name after sanitizing.
func ValidTeamName(s string) bool {
	return ValidateLength(strings.TrimSpace(s), 1, MaxTeamNameLength)
}

// SanitizeString removes null bytes and invalid UTF-8 and trims spaces
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.TrimSpace(s)
}

// ValidateLength checks if the rune count is within bounds
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}
