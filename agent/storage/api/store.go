package api

import (
	"context"
	"time"
)

// RecordStore is durable key-value storage of one physical wallet. Records
// are keyed by (type, id). The store has no tenant concept, that's added by
// the backends on top of it.
type RecordStore interface {
	// Name returns the name the store was opened with.
	Name() string

	// Put inserts or replaces the record, last writer wins.
	Put(ctx context.Context, r Record) error

	// Insert adds the record only if it doesn't exist. Otherwise it returns
	// ErrItemAlreadyExists.
	Insert(ctx context.Context, r Record) error

	// Get returns the record or ErrItemNotFound. Expiry isn't checked.
	Get(ctx context.Context, typ, id string) (Record, error)

	// Update runs a read-modify-write for an existing record atomically. fn
	// gets a copy of the record it can modify; Type and ID changes are
	// ignored. If fn returns an error, nothing is written.
	Update(ctx context.Context, typ, id string, fn func(r *Record) error) error

	// Delete removes the record or returns ErrItemNotFound.
	Delete(ctx context.Context, typ, id string) error

	// Iterate returns a lazy iterator over the records of the type whose ID
	// starts with the prefix, in ID order.
	Iterate(ctx context.Context, typ, idPrefix string) (Iterator, error)

	// Types returns all record types which have at least one record.
	Types(ctx context.Context) ([]string, error)

	// DeleteExpired removes the records which have expired at now. It
	// returns the number of removed records.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Metadata returns the store metadata blob, nil if not set.
	Metadata(ctx context.Context) ([]byte, error)
	SetMetadata(ctx context.Context, data []byte) error

	Close() error
}

// Provider manages the physical stores of one storage type, e.g. bolt files
// in a directory or rows in a shared SQL database.
type Provider interface {
	// Type returns the storage type name like "bolt" or "sqlite".
	Type() string

	Exists(ctx context.Context, name string) (bool, error)

	// Create provisions a new store. It returns ErrWalletAlreadyExists if
	// the name is taken.
	Create(ctx context.Context, name string) (RecordStore, error)

	// Open opens an existing store or returns ErrWalletNotFound.
	Open(ctx context.Context, name string) (RecordStore, error)

	// Remove deletes the store and all of its records. It returns
	// ErrWalletNotFound if there is nothing to remove.
	Remove(ctx context.Context, name string) error
}
