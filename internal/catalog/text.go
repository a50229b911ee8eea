package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s after transliterating it to ASCII, so "Đảo Hải Tặc"
// and "dao hai tac" fold to the same text.
func Fold(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	return strings.ToLower(unidecode.Unidecode(s))
}

// Slugify builds a URL slug: folded to ASCII, runs of anything that is not a
// letter or digit collapsed to a single dash, no leading or trailing dash.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range Fold(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// TitleKey is the match key for titles and names: folded, with every
// character outside [a-z0-9] removed.
func TitleKey(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Checksum is the hex sha256 of s. Stream URLs use it as their identity
// within a server.
func Checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// StringPtr returns nil for blank strings and a pointer to the trimmed value
// otherwise.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
