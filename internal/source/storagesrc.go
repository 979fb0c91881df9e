package source

import (
	"context"
	"time"

	"relay/internal/storage"
)

// Storage is a config source backed by a named on-disk store (§4.2).
type Storage struct {
	folder string
	key    string
	store  storage.Store
}

func NewStorage(folder, key string, store storage.Store) *Storage {
	return &Storage{folder: folder, key: key, store: store}
}

var _ Source = (*Storage)(nil)

func (s *Storage) CacheKey() string { return "storage:" + s.folder + ":" + s.key }

func (s *Storage) Fetch(ctx context.Context) (string, error) {
	item, err := s.store.Get(s.key)
	if err != nil {
		return "", err
	}
	return string(item.Content), nil
}

// Wait polls the underlying store's updated_at for this key, following the
// same ticker-poll idiom as Path (no file-level fsnotify is available for
// storage-backed sources, which may not be on-disk at all).
func (s *Storage) Wait(ctx context.Context) error {
	initial, err := s.store.GetUpdatedAt(s.key)
	if err != nil {
		initial = 0
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ts, err := s.store.GetUpdatedAt(s.key)
			if err == nil && ts != initial {
				return nil
			}
		}
	}
}
