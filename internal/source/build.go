package source

import (
	"fmt"
	"time"

	"relay/internal/model"
	"relay/internal/storage"
)

// Build constructs the concrete Source for an ImportSource tagged union.
// storageRoots resolves a named folder (as used by Storage sources) to a
// Store; passing nil disallows storage-backed sources.
func Build(is model.ImportSource, storageRoots func(folder string) (storage.Store, error)) (Source, error) {
	switch {
	case is.Path != "":
		return NewPath(is.Path), nil
	case is.Poll != nil:
		var interval time.Duration
		if is.Poll.Interval != "" {
			d, err := time.ParseDuration(is.Poll.Interval)
			if err != nil {
				return nil, fmt.Errorf("import source: bad poll interval %q: %w", is.Poll.Interval, err)
			}
			interval = d
		}
		return NewPoll(is.Poll.URL, interval), nil
	case is.Storage != nil:
		if storageRoots == nil {
			return nil, fmt.Errorf("import source: storage sources not supported here")
		}
		store, err := storageRoots(is.Storage.Folder)
		if err != nil {
			return nil, err
		}
		return NewStorage(is.Storage.Folder, is.Storage.Key, store), nil
	default:
		return NewText(is.Text), nil
	}
}
