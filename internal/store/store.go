// Package store defines the five primitives the booking engine needs from
// its shared live store: plain reads and writes with last-writer-wins
// semantics, a per-key linearizable compare-and-set transaction, and key
// subscriptions for live updates. The engine never talks to a concrete
// store directly, so the whole concurrency core can be exercised against
// the in-memory implementation.
package store

import (
	"context"
	"errors"
)

// ErrAbort is returned from a CASFunc to leave the key untouched and report
// the transaction as not committed. It is not an error at the Store level.
var ErrAbort = errors.New("store: transaction aborted")

// CASFunc maps the current value of a key (nil when the key is missing) to
// its next value. Returning (nil, nil) deletes the key; returning ErrAbort
// aborts without writing.
type CASFunc func(current []byte) (next []byte, err error)

// Result reports the outcome of a compare-and-set transaction. Value holds
// the value resulting from the transaction: the written value on commit,
// the untouched current value on abort.
type Result struct {
	Committed bool
	Value     []byte
}

// Unsubscribe stops a key subscription.
type Unsubscribe func()

type Store interface {
	// Read returns the current value, or (nil, nil) when the key is missing.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write unconditionally sets the value (last writer wins).
	Write(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndSet runs fn against the current value in a linearizable
	// per-key transaction and applies the returned value.
	CompareAndSet(ctx context.Context, key string, fn CASFunc) (Result, error)

	// Watch invokes fn with the new value after every write to the key
	// (nil after a delete), until the returned Unsubscribe is called.
	Watch(ctx context.Context, key string, fn func(value []byte)) (Unsubscribe, error)
}
