package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// FetchAll retrieves owner's bookmarks, newest first
func (s *Store) FetchAll(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record: skip it
			continue
		}
		var b domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			s.logger.Warn("skipping unreadable bookmark",
				logger.String("id", ids[i]),
				logger.Error(err))
			continue
		}
		if b.Owner != owner {
			continue
		}
		bookmarks = append(bookmarks, b)
	}

	sort.SliceStable(bookmarks, func(i, j int) bool {
		return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
	})

	return bookmarks, nil
}

// Insert stores a new bookmark and publishes an insert event.
// ID and CreatedAt are assigned here, never by the caller.
func (s *Store) Insert(ctx context.Context, owner, title, url string) (domain.Bookmark, error) {
	b := domain.Bookmark{
		ID:        uuid.NewString(),
		Owner:     owner,
		Title:     title,
		URL:       url,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}
	event, err := encodeEvent(domain.ChangeEvent{Kind: domain.EventInsert, New: &b})
	if err != nil {
		return domain.Bookmark{}, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(b.ID), data, 0)
		pipe.ZAdd(ctx, OwnerKey(owner), redis.Z{Score: score(b.CreatedAt), Member: b.ID})
		pipe.Publish(ctx, s.topic, event)
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}

	return b, nil
}

// Replace overwrites an existing bookmark as a whole and publishes an update
// event with both the new and old state.
func (s *Store) Replace(ctx context.Context, b domain.Bookmark) error {
	key := BookmarkKey(b.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getBookmark(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if current.Owner != b.Owner {
			return domain.ErrNotOwner
		}

		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark: %w", err)
		}
		event, err := encodeEvent(domain.ChangeEvent{Kind: domain.EventUpdate, New: &b, Old: &current})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, OwnerKey(b.Owner), redis.Z{Score: score(b.CreatedAt), Member: b.ID})
			pipe.Publish(ctx, s.topic, event)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to replace bookmark %s: %w", b.ID, err)
	}

	return nil
}

// Delete removes id if owner owns it. An id that no longer exists is treated
// as already deleted. The published event carries only the id.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	key := BookmarkKey(id)
	absent := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getBookmark(ctx, tx, id)
		if errors.Is(err, errNotFound) {
			absent = true
			return nil
		}
		if err != nil {
			return err
		}
		if current.Owner != owner {
			return domain.ErrNotOwner
		}

		event, err := encodeEvent(domain.ChangeEvent{Kind: domain.EventDelete, Old: &domain.Bookmark{ID: id}})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, OwnerKey(owner), id)
			pipe.Publish(ctx, s.topic, event)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark %s: %w", id, err)
	}

	if absent {
		s.logger.Debug("delete of absent bookmark", logger.String("id", id))
	}
	return nil
}

var errNotFound = errors.New("bookmark not found")

func getBookmark(ctx context.Context, tx *redis.Tx, id string) (domain.Bookmark, error) {
	data, err := tx.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bookmark{}, fmt.Errorf("%w: %s", errNotFound, id)
		}
		return domain.Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var b domain.Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}
	return b, nil
}

// encodeEvent marshals a change event. It is published in the same
// MULTI/EXEC as the write it describes, so subscribers see events in commit
// order.
func encodeEvent(ev domain.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %w", err)
	}
	return data, nil
}
