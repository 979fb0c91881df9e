package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"relay/internal/model"
)

// indexEntry is one row of the on-disk index.json: the blob filename for a
// key plus its last-modified timestamp.
type indexEntry struct {
	Blob      string `json:"blob"`
	UpdatedAt int64  `json:"updated_at"`
}

// Disk is an on-disk Store: an index.json plus one opaque blob file per key
// under dir. Index mutations take an exclusive flock on the index file;
// reads take a shared flock, per §4.1 / §5.
type Disk struct {
	dir       string
	indexPath string

	mu sync.Mutex // serializes in-process writers on top of the cross-process flock
}

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	d := &Disk{dir: dir, indexPath: filepath.Join(dir, "index.json")}
	if _, err := os.Stat(d.indexPath); os.IsNotExist(err) {
		if err := d.writeIndex(map[string]indexEntry{}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

var _ Store = (*Disk)(nil)

func (d *Disk) withLock(exclusive bool, fn func(*os.File) error) error {
	f, err := os.OpenFile(d.indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open index: %w", err)
	}
	defer f.Close()

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		return fmt.Errorf("storage: flock index: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	return fn(f)
}

func (d *Disk) readIndex(f *os.File) (map[string]indexEntry, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var idx map[string]indexEntry
	dec := json.NewDecoder(f)
	if err := dec.Decode(&idx); err != nil {
		if idx == nil {
			return map[string]indexEntry{}, nil
		}
		return nil, fmt.Errorf("storage: decode index: %w", err)
	}
	if idx == nil {
		idx = map[string]indexEntry{}
	}
	return idx, nil
}

// writeIndex takes its own exclusive lock; callers already holding one
// must use writeIndexLocked instead.
func (d *Disk) writeIndex(idx map[string]indexEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withLock(true, func(f *os.File) error {
		return writeIndexLocked(f, idx)
	})
}

func writeIndexLocked(f *os.File, idx map[string]indexEntry) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

func (d *Disk) blobPath(name string) string {
	return filepath.Join(d.dir, name)
}

func (d *Disk) Get(key string) (model.StorageItem, error) {
	var item model.StorageItem
	err := d.withLock(false, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		entry, ok := idx[key]
		if !ok {
			return errNotFound(key)
		}
		content, err := os.ReadFile(d.blobPath(entry.Blob))
		if err != nil {
			return fmt.Errorf("storage: read blob: %w", err)
		}
		item = model.StorageItem{UpdatedAt: entry.UpdatedAt, Content: stripBOM(content)}
		return nil
	})
	return item, err
}

func (d *Disk) Set(key string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withLock(true, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		entry, exists := idx[key]
		if !exists {
			entry = indexEntry{Blob: uuidBlobName()}
		}
		now := time.Now().UnixNano()
		if now <= entry.UpdatedAt {
			now = entry.UpdatedAt + 1
		}
		entry.UpdatedAt = now
		if err := os.WriteFile(d.blobPath(entry.Blob), content, 0o644); err != nil {
			return fmt.Errorf("storage: write blob: %w", err)
		}
		idx[key] = entry
		return writeIndexLocked(f, idx)
	})
}

func (d *Disk) GetUpdatedAt(key string) (int64, error) {
	var ts int64
	err := d.withLock(false, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		entry, ok := idx[key]
		if !ok {
			return errNotFound(key)
		}
		ts = entry.UpdatedAt
		return nil
	})
	return ts, err
}

func (d *Disk) Keys() ([]KeyTimestamp, error) {
	var out []KeyTimestamp
	err := d.withLock(false, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		out = make([]KeyTimestamp, 0, len(idx))
		for k, v := range idx {
			out = append(out, KeyTimestamp{Key: k, UpdatedAt: v.UpdatedAt})
		}
		return nil
	})
	return out, err
}

func (d *Disk) Remove(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withLock(true, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		entry, ok := idx[key]
		if !ok {
			return errNotFound(key)
		}
		delete(idx, key)
		if err := writeIndexLocked(f, idx); err != nil {
			return err
		}
		_ = os.Remove(d.blobPath(entry.Blob)) // best-effort
		return nil
	})
}

func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.withLock(true, func(f *os.File) error {
		idx, err := d.readIndex(f)
		if err != nil {
			return err
		}
		for _, entry := range idx {
			_ = os.Remove(d.blobPath(entry.Blob))
		}
		return writeIndexLocked(f, map[string]indexEntry{})
	})
}
