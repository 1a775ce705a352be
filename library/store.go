package library

import "context"

// Record is one value in a Store.
type Record struct {
	Bucket string
	Key    string
	Value  []byte
}

// Store is an opaque key-value store addressed by (bucket, key).
// Implementations must be safe for concurrent use.
type Store interface {
	// Put creates or replaces the value at (bucket, key).
	Put(ctx context.Context, bucket, key string, value []byte) error

	// Get returns the value at (bucket, key), or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// List returns the values in bucket whose key starts with prefix,
	// ordered by key.
	List(ctx context.Context, bucket, prefix string) ([][]byte, error)

	// Delete removes every key in bucket starting with prefix. Deleting
	// nothing is not an error.
	Delete(ctx context.Context, bucket, prefix string) error

	// Clear removes every record in every bucket.
	Clear(ctx context.Context) error

	// Batch writes records atomically. When clear is set every existing
	// record is removed first, in the same transaction.
	Batch(ctx context.Context, clear bool, records []Record) error

	Close() error
}
