// Package identity derives stable identifiers for scraped posts.
package identity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// HashPrefix marks a fingerprint derived from content rather than a native id.
const HashPrefix = "hash_"

// HashWindow is the number of leading runes of normalized text that feed the
// content hash.
const HashWindow = 50

// Fingerprint identifies a post within a session.
type Fingerprint string

// Native reports whether the fingerprint came from the site's own id.
func (f Fingerprint) Native() bool {
	return f != "" && !strings.HasPrefix(string(f), HashPrefix)
}

func (f Fingerprint) String() string { return string(f) }

// FromHref extracts the numeric id from a permalink such as
// https://x.com/user/status/1234567890?s=20. ok is false when the href holds
// no purely numeric status segment.
func FromHref(href string) (Fingerprint, bool) {
	idx := strings.LastIndex(href, "/status/")
	if idx < 0 {
		return "", false
	}
	id := href[idx+len("/status/"):]
	if cut := strings.IndexAny(id, "?#/"); cut >= 0 {
		id = id[:cut]
	}
	if !isDigits(id) {
		return "", false
	}
	return Fingerprint(id), true
}

// FromText derives a content fingerprint from the first HashWindow runes of
// the trimmed, case-folded text.
func FromText(text string) Fingerprint {
	norm := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(norm) > HashWindow {
		norm = string([]rune(norm)[:HashWindow])
	}
	sum := xxhash.Sum64String(norm)
	return Fingerprint(fmt.Sprintf("%s%016x", HashPrefix, sum))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
