package engine

import (
	"context"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/realtime"
)

// Gateway is the remote store as seen by the engine. Implementations are
// stateless from the engine's point of view and never retry on their own.
type Gateway interface {
	realtime.Source

	// FetchAll returns owner's bookmarks, CreatedAt descending.
	FetchAll(ctx context.Context, owner string) ([]domain.Bookmark, error)

	// Insert creates a bookmark; the store assigns ID and CreatedAt.
	Insert(ctx context.Context, owner, title, url string) (domain.Bookmark, error)

	// Delete removes id if it belongs to owner.
	Delete(ctx context.Context, id, owner string) error
}
