package archive

import (
	"strings"
	"unicode/utf8"
)

// forbiddenChars is the set rejected in file names by the most restrictive
// common filesystem. Control characters are rejected separately.
const forbiddenChars = `"<>|:*?\/`

// maxBaseBytes bounds the sanitized part of a storage key. Keys, entry names
// and backend temp names stay under 255 bytes.
const maxBaseBytes = 120

// Sanitize drops characters that cannot appear in a storage name, trims
// surrounding whitespace and strips leading dots. An all-invalid input
// yields "".
func Sanitize(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbiddenChars, r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimLeft(strings.TrimSpace(cleaned), ".")
	return strings.TrimSpace(cleaned)
}

// truncateBase cuts base to at most maxBaseBytes on a rune boundary.
func truncateBase(base string) string {
	if len(base) <= maxBaseBytes {
		return base
	}
	cut := maxBaseBytes
	for cut > 0 && !utf8.RuneStart(base[cut]) {
		cut--
	}
	return strings.TrimSpace(base[:cut])
}

// validKey reports whether key could have been produced by Sanitize. Such a
// key has no path separator and is never "." or "..".
func validKey(key string) bool {
	return key != "" && Sanitize(key) == key
}
