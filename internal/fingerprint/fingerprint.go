// Package fingerprint computes the deterministic content fingerprint used
// to detect duplicate conversations across ingests, grounded on the
// teacher's canonicalize-then-SHA-256 idiom in
// pkg/connector/memory_manager.go's memoryManagerCacheKey.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Turn is the minimal shape the fingerprinter needs from a conversation
// turn: role and content, nothing else. Timestamps, models, and other
// per-message metadata are intentionally excluded per spec.md §4.3.
type Turn struct {
	Role    string
	Content string
}

// Compute returns the hex-encoded SHA-256 fingerprint of
// source || sourceConversationID || sorted(set({SHA-256(role||content)})).
func Compute(source, sourceConversationID string, turns []Turn) string {
	memberHashes := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		h := sha256.Sum256([]byte(t.Role + t.Content))
		memberHashes[hex.EncodeToString(h[:])] = struct{}{}
	}
	members := make([]string, 0, len(memberHashes))
	for h := range memberHashes {
		members = append(members, h)
	}
	sort.Strings(members)

	outer := sha256.New()
	outer.Write([]byte(source))
	outer.Write([]byte(sourceConversationID))
	for _, m := range members {
		outer.Write([]byte(m))
	}
	return hex.EncodeToString(outer.Sum(nil))
}
