// SPDX-License-Identifier: MIT

package util

import (
	"regexp"
	"strings"
)

const (
	// MaxIdentifierLength caps sanitized channel/stream identifiers.
	MaxIdentifierLength = 64

	// MaxRawInputLength rejects pathological input before any processing.
	MaxRawInputLength = 1024
)

var collapseUnderscoresRe = regexp.MustCompile(`_+`)

// SanitizeIdentifier sanitizes a channel id, stream name or socket/log
// filename component for safe use in file paths and config lookups. Unlike
// a device name, an identifier has no meaningful timestamped fallback
// (callers own what to do with an empty result), so it returns "" rather
// than synthesizing a value.
//
// Rules, in order:
//  1. reject control characters, path traversal ("..") and "/", "$": -> ""
//  2. truncate to MaxIdentifierLength
//  3. replace non-alphanumeric/non-hyphen characters with underscore
//  4. collapse consecutive underscores
//  5. trim leading/trailing underscores
//  6. prefix "id_" if the result starts with a digit
func SanitizeIdentifier(name string) string {
	if name == "" || len(name) > MaxRawInputLength {
		return ""
	}
	if containsControlChars(name) {
		return ""
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/$") {
		return ""
	}

	if len(name) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength]
	}

	sanitized := replaceDisallowed(name)
	sanitized = collapseUnderscoresRe.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if sanitized != "" && sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "id_" + sanitized
	}
	return sanitized
}

func replaceDisallowed(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlphanumeric(c) || c == '-' {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func containsControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && c != 0x09 && c != 0x0A && c != 0x0D {
			return true
		}
		if c == 0x7F {
			return true
		}
	}
	return false
}
