package redis

import "time"

const (
	// KeyPrefixBookmark is the prefix for bookmark record keys
	KeyPrefixBookmark = "marksync:bookmark:"
	// KeyPrefixOwner is the prefix for the per-owner sorted set of bookmark IDs
	KeyPrefixOwner = "marksync:owner:"
)

// BookmarkKey returns the Redis key holding a bookmark's JSON
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerKey returns the Redis key of the sorted set indexing owner's bookmarks
func OwnerKey(owner string) string {
	return KeyPrefixOwner + owner
}

// score orders the owner index by creation time. Microseconds stay exact
// in a float64 for any realistic date.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
