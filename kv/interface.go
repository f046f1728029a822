// Package kv defines the ordered key-value backend contract (component B
// in spec.md §2): put/get/delete/replace, bulk ordered put, prefix and range
// scan, and dup-sort secondary databases. Adapted from turbo-geth's ethdb
// package (Cursor/Tx/Putter split, dup-sort cursor semantics) and re-themed
// from an Ethereum state backend to the graph layer's buckets.
package kv

import "context"

// Bucket names are opaque strings; see common/dbutils for the canonical set.
type Bucket = string

// Putter is satisfied by both a live RW transaction and any higher-level
// wrapper that only needs to accept writes.
type Putter interface {
	Put(bucket Bucket, k, v []byte) error
	Delete(bucket Bucket, k []byte) error
}

// Getter reads committed or in-flight (same-tx) state.
type Getter interface {
	Get(bucket Bucket, k []byte) ([]byte, error)
}

// Cursor walks one bucket in key order. For a DupSort bucket, Next/Prev
// advance across (key,value) pairs in (key, value) order, matching LMDB's
// own dup-sort cursor semantics.
type Cursor interface {
	Seek(seek []byte) (k, v []byte, err error)
	SeekExact(seek []byte) (v []byte, err error)
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	Current() (k, v []byte, err error)

	Put(k, v []byte) error
	Delete(k []byte) error

	// Count returns the number of values the current key holds in a
	// DupSort bucket (1 for a plain bucket).
	Count() (uint64, error)

	Close()
}

// Tx is a single read or read-write transaction. Every storNodeEdits call
// runs inside exactly one Tx; readers (lifts, getStorNode) get their own Tx
// against the backend's MVCC snapshot, per spec.md §5.
type Tx interface {
	Get(bucket Bucket, k []byte) ([]byte, error)
	Put(bucket Bucket, k, v []byte) error
	Delete(bucket Bucket, k []byte) error

	// Replace stores newV under k and returns the previous value (nil if
	// absent), in a single round trip — used by every *_SET editor.
	Replace(bucket Bucket, k, newV []byte) (oldV []byte, err error)

	// Pop deletes k and returns its previous value (nil if absent) — used
	// by every *_DEL editor.
	Pop(bucket Bucket, k []byte) (oldV []byte, err error)

	// DeleteExact removes exactly the (k,v) pair from a DupSort bucket,
	// leaving any other value stored under k untouched. Plain (non-dup)
	// buckets treat it the same as Delete(bucket, k). Used by every
	// secondary-index row removal (abrv+indx -> buid), since Delete alone
	// would drop every buid sharing that index key.
	DeleteExact(bucket Bucket, k, v []byte) error

	Cursor(bucket Bucket) Cursor

	Commit() error
	Rollback()
}

// KV is the backend handle: opens read or read-write transactions and
// manages the bucket schema. Implementations: lmdb.go (production,
// memory-mapped LMDB via ledgerwatch/lmdb-go) and memory.go (in-memory
// ordered store for tests, built on petar/GoLLRB).
type KV interface {
	View(ctx context.Context, f func(tx Tx) error) error
	Update(ctx context.Context, f func(tx Tx) error) error
	Close()
}
