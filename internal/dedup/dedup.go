// Package dedup removes repeated posts, first by id while scrolling and then
// by normalized text once collection ends.
package dedup

import (
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/identity"
	"github.com/Cryonoid/TwitLysis/internal/tweet"
)

// Running tracks ids accepted during one collection attempt. The zero value
// is ready to use.
type Running struct {
	seen map[identity.Fingerprint]struct{}
}

// Seen reports whether fp was already accepted.
func (r *Running) Seen(fp identity.Fingerprint) bool {
	_, ok := r.seen[fp]
	return ok
}

// Accept records the item and reports whether it is new. Items with empty
// text are rejected.
func (r *Running) Accept(it tweet.Item) bool {
	if strings.TrimSpace(it.Text) == "" {
		return false
	}
	fp := identity.Fingerprint(it.ID)
	if fp == "" {
		fp = identity.FromText(it.Text)
	}
	if r.Seen(fp) {
		return false
	}
	if r.seen == nil {
		r.seen = make(map[identity.Fingerprint]struct{})
	}
	r.seen[fp] = struct{}{}
	return true
}

// Len returns the number of accepted ids.
func (r *Running) Len() int { return len(r.seen) }

// FinalPass drops items whose normalized text was already seen, keeping
// first-seen order. It is idempotent.
func FinalPass(items []tweet.Item) []tweet.Item {
	out := make([]tweet.Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		key := it.Normalized()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
