// Package store persists named lists of strings. The subscriber list is the only list the
// service keeps; backends are chosen at deployment time.
package store

import (
	"context"
	"time"
)

// ListStore is durable read/write of a list of strings under a key. Get reports ok=false
// when nothing was ever written under key.
//
// Implementations do not provide compare-and-swap: two writers that both read the old list
// can each write back a list missing the other's entry.
type ListStore interface {
	Get(ctx context.Context, key string) (values []string, ok bool, err error)
	Set(ctx context.Context, key string, values []string) error
	// Kind names the backend, e.g. "mongo-kv".
	Kind() string
}

// Timestamped is implemented by stores that know when a key was last written.
type Timestamped interface {
	LastUpdated(ctx context.Context, key string) (time.Time, bool, error)
}
