package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// HashString generates a SHA1 hash of a string
func HashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// DedupHash derives a stable hash from the normalized form of an item's
// title, link and creation time. Two fetches of the same underlying item
// must produce the same hash so storage can treat inserts as idempotent
// upserts.
func DedupHash(title, url string, createdAt time.Time) string {
	normTitle := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	normURL := strings.TrimRight(strings.TrimSpace(url), "/")
	return HashString(normTitle + "|" + normURL + "|" + createdAt.UTC().Format(time.RFC3339))
}

// PostKey builds the stable dedup key platform:sourceId:postId.
func PostKey(platform, sourceID, postID string) string {
	return platform + ":" + sourceID + ":" + postID
}
