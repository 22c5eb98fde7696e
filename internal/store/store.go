// Package store persists stream records as opaque values keyed by
// (kind, id). Backends only need point reads, point writes and an atomic
// batch; the typed codec on top lives in records.go.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the entity type half of a key.
type Kind string

const (
	KindStream   Kind = "stream"
	KindReceipt  Kind = "receipt"
	KindProposal Kind = "proposal"
	KindSequence Kind = "sequence"
)

// Key addresses a single record.
type Key struct {
	Kind Kind
	ID   uint64
}

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Kind, k.ID) }

// Write is one entry of an atomic batch. A nil Value removes the key.
type Write struct {
	Key   Key
	Value []byte
}

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: not found")

// KV is the storage collaborator.
type KV interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	Remove(ctx context.Context, key Key) error
	// Apply performs every write or none of them.
	Apply(ctx context.Context, writes []Write) error
	Close() error
}

// Open returns the backend named by driver.
func Open(driver, dsn string) (KV, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("unsupported store driver: %s", driver)
}
