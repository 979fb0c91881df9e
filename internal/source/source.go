// Package source implements config import sources (C2): path, polled URL,
// storage-backed, and inline text. Every source exposes a Fetch that
// returns the current text and a Wait that blocks until new text might be
// available, following the teacher's suspend-at-I/O, never-busy-wait
// scheduling rule (§5).
package source

import "context"

// Source is the contract common to all four import-source variants.
type Source interface {
	// CacheKey yields a stable string used both as a storage key and as the
	// config id derived from this source.
	CacheKey() string

	// Fetch returns the current text content.
	Fetch(ctx context.Context) (string, error)

	// Wait blocks until the source believes new content might be available,
	// or ctx is done. It never returns early on its own busy loop.
	Wait(ctx context.Context) error
}
