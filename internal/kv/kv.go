// Package kv moves opaque documents between the ledger and an external
// key-value store. It has no knowledge of what the documents contain.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the store answered and the key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps every transport, timeout and protocol failure.
	// Callers must not read it as "absent".
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrConflict is returned by CompareAndSwap when the stored value moved.
	ErrConflict = errors.New("kv: value changed concurrently")
)

// Store is the minimal contract every backend offers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Swapper is implemented by backends that can write conditionally.
// A nil old value means the key is expected to be absent.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
