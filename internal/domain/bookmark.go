package domain

import "time"

// Bookmark is a single saved link owned by one identity.
// Records are only ever replaced as a whole; there are no partial updates.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (immutable, assigned by the remote store)
	// ─────────────────────────────

	// ID is the globally unique identifier.
	ID string `json:"id"`

	// Owner is the identity the bookmark belongs to.
	Owner string `json:"user_id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the user-facing label. Never empty.
	Title string `json:"title"`

	// URL is the canonical absolute location.
	// Example: https://example.com/docs
	URL string `json:"url"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is set by the remote store on insert.
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the user input for a new bookmark before validation.
type Draft struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
