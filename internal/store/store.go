// Package store provides the engine's persistence layer: a generic
// key-value interface with bounded-lifetime keys, list queues and index
// sets, plus typed stores for the catalog, analysis results, and the task
// queue built on top of it.
package store

import (
	"context"
	"fmt"
	"time"
)

// KeyValueStore is the storage capability the engine consumes. Keys carry
// an optional TTL; writes to the same key overwrite. Implementations must
// be safe for concurrent use.
type KeyValueStore interface {
	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key, and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Keys returns all live keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// ListPush appends value to the tail of the list at key.
	ListPush(ctx context.Context, key string, value []byte) error
	// ListPop removes and returns the head of the list at key.
	ListPop(ctx context.Context, key string) ([]byte, bool, error)
	// ListRange returns elements [start, stop] of the list at key,
	// with Redis semantics for negative indices.
	ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	// ListLen returns the length of the list at key.
	ListLen(ctx context.Context, key string) (int64, error)

	// SetAdd adds member to the set at key.
	SetAdd(ctx context.Context, key string, member string) error
	// SetMembers returns all members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases store resources.
	Close() error
}

// StoreError wraps a store failure. Unlike propagation or batch errors it
// is fatal to the current cycle: the cycle is abandoned and retried after
// backoff.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}
