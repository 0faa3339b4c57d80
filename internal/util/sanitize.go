package util

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"go-telemed/pkg/apierror"
)

// ValidateUsername rejects names that would render identically to another
// account or break log lines: control and invisible characters, whitespace,
// and anything longer than maxRunes.
func ValidateUsername(name string, maxRunes int) error {
	if name == "" {
		return apierror.New("INVALID_USERNAME", "username cannot be empty", "", http.StatusBadRequest)
	}

	if !utf8.ValidString(name) {
		return apierror.New("INVALID_USERNAME", "username is not valid UTF-8", "", http.StatusBadRequest)
	}

	if utf8.RuneCountInString(name) > maxRunes {
		return apierror.New("INVALID_USERNAME", "username is too long", fmt.Sprintf("max %d characters", maxRunes), http.StatusBadRequest)
	}

	for _, char := range name {
		switch {
		case unicode.IsControl(char), isInvisibleUnicode(char):
			return apierror.New("INVALID_USERNAME", "username contains invisible characters", "", http.StatusBadRequest)
		case unicode.IsSpace(char):
			return apierror.New("INVALID_USERNAME", "username cannot contain whitespace", "", http.StatusBadRequest)
		}
	}

	return nil
}

// StripInvisible drops control and invisible characters, for values that are
// echoed into logs and audit records.
func StripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || isInvisibleUnicode(r) {
			return -1
		}
		return r
	}, s)
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
