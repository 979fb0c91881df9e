// Package storage implements the key/value blob contract (C1): memory and
// on-disk variants, both keyed by opaque strings and tracking a monotone
// per-key update timestamp.
package storage

import (
	"bytes"
	"errors"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// stripBOM removes a leading UTF-8 byte-order mark from text blobs on read,
// per §4.1.
func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}

// KeyTimestamp pairs a key with its last-modified time, as returned by Keys.
type KeyTimestamp struct {
	Key       string
	UpdatedAt int64
}

// Store is the storage contract shared by the memory and on-disk variants.
type Store interface {
	Get(key string) (model.StorageItem, error)
	Set(key string, content []byte) error
	GetUpdatedAt(key string) (int64, error)
	Keys() ([]KeyTimestamp, error)
	Remove(key string) error
	Clear() error
}

// errNotFound builds the error Get/GetUpdatedAt/Remove return when key is
// absent, carrying relayerr's NotFound kind so callers can errors.Is against it.
func errNotFound(key string) error {
	return relayerr.NotFound("storage key not found: " + key)
}

// IsNotFound reports whether err is the not-found error Get/GetUpdatedAt/
// Remove return for an absent key.
func IsNotFound(err error) bool {
	var e *relayerr.Error
	return errors.As(err, &e) && e.Kind == relayerr.KindNotFound
}
