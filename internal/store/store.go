// Package store implements the persistence contract spec §6 leaves
// open: "any key-value store that supports atomic read-modify-write of
// one key is sufficient." The engine's snapshot document is the value;
// forged stores it under a single fixed key.
package store

import "context"

// KVStore is the persistence contract the engine's snapshot loop uses.
// Update must be atomic with respect to other Update/Get calls on the
// same key: fn observes the latest committed value and its return
// value becomes the new committed value in one step, so two concurrent
// writers to the same key never interleave a partial write.
type KVStore interface {
	// Get returns the current value for key. exists is false when no
	// value has ever been written.
	Get(ctx context.Context, key string) (value []byte, exists bool, err error)

	// Update atomically reads the current value for key, calls fn with
	// it, and persists fn's return value. fn is called with exists=false
	// and a nil value the first time key is written. Returning an error
	// from fn aborts the update: no write occurs and Update returns that
	// error unchanged.
	Update(ctx context.Context, key string, fn func(current []byte, exists bool) ([]byte, error)) error

	// Close releases any resources the store holds open.
	Close() error
}
