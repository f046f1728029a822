package kv

import (
	"bytes"
	"context"
	"sync"

	"github.com/petar/GoLLRB/llrb"
)

// item is a single (key,value) row stored in a bucket's ordered tree. dup
// marks whether this item belongs to a DupSort bucket: a plain bucket holds
// at most one item per key, so its items compare by key alone (two puts
// under the same key must be treated as equal, or ReplaceOrInsert would
// leave both in the tree instead of overwriting); a DupSort bucket holds
// many items per key ordered by value, so value participates in the
// comparison too.
type item struct {
	k, v []byte
	dup  bool
}

func (a *item) Less(than llrb.Item) bool {
	b := than.(*item)
	c := bytes.Compare(a.k, b.k)
	if c != 0 {
		return c < 0
	}
	if !a.dup && !b.dup {
		return false
	}
	return bytes.Compare(a.v, b.v) < 0
}

// MemKV is an in-memory ordered key-value backend built on petar/GoLLRB,
// standing in for the LMDB backend in tests: same kv.KV contract, same
// dup-sort key ordering, no mmap'd file. Adapted from turbo-geth's
// ethdb.NewMemDatabase in spirit (a swappable in-memory Database for unit
// tests), rebuilt on an ordered tree instead of Bolt's MemOnly mode so
// range/prefix scans behave identically to the production LMDB backend.
type MemKV struct {
	mu      sync.RWMutex
	dupsort map[Bucket]bool
	trees   map[Bucket]*llrb.LLRB
}

// NewMemKV creates an empty in-memory backend. dupsort names the buckets
// that hold multiple values per key (the secondary indexes); every other
// named bucket is a plain one-value-per-key store.
func NewMemKV(buckets []Bucket, dupsort map[Bucket]bool) *MemKV {
	m := &MemKV{dupsort: dupsort, trees: make(map[Bucket]*llrb.LLRB, len(buckets))}
	for _, b := range buckets {
		m.trees[b] = llrb.New()
	}
	return m
}

func (m *MemKV) View(_ context.Context, f func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f(&memTx{kv: m, write: false})
}

// Update runs f against a working copy of every bucket's tree, swapping it
// in as the backend's live state only if f returns nil. If f returns an
// error the working copy is discarded and every write f made is undone,
// matching LMDB's abort-on-error Update contract (kv/lmdb.go).
//
// Cloning re-inserts each bucket's existing *item pointers into a fresh
// tree rather than deep-copying their key/value bytes: Put/Replace/Pop
// already give every stored item its own private backing array (via
// copyOf), so an *item is never mutated in place once inserted, and
// sharing the pointer between the live tree and the working copy is safe.
func (m *MemKV) Update(_ context.Context, f func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.trees
	work := make(map[Bucket]*llrb.LLRB, len(live))
	for b, t := range live {
		work[b] = cloneTree(t)
	}
	m.trees = work

	if err := f(&memTx{kv: m, write: true}); err != nil {
		m.trees = live
		return err
	}
	return nil
}

func cloneTree(t *llrb.LLRB) *llrb.LLRB {
	clone := llrb.New()
	min := t.Min()
	if min == nil {
		return clone
	}
	t.AscendGreaterOrEqual(min, func(i llrb.Item) bool {
		clone.ReplaceOrInsert(i)
		return true
	})
	return clone
}

func (m *MemKV) Close() {}

func (m *MemKV) tree(bucket Bucket) *llrb.LLRB {
	t, ok := m.trees[bucket]
	if !ok {
		t = llrb.New()
		m.trees[bucket] = t
	}
	return t
}

type memTx struct {
	kv    *MemKV
	write bool
}

func copyOf(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// newItem builds an item whose dup flag matches the bucket's schema, so its
// Less method compares the right fields regardless of which operation
// constructed it.
func (tx *memTx) newItem(bucket Bucket, k, v []byte) *item {
	return &item{k: k, v: v, dup: tx.kv.dupsort[bucket]}
}

func (tx *memTx) Get(bucket Bucket, k []byte) ([]byte, error) {
	t := tx.kv.tree(bucket)
	found := t.Get(tx.newItem(bucket, k, nil))
	if found == nil {
		return nil, nil
	}
	return copyOf(found.(*item).v), nil
}

func (tx *memTx) Put(bucket Bucket, k, v []byte) error {
	t := tx.kv.tree(bucket)
	t.ReplaceOrInsert(tx.newItem(bucket, copyOf(k), copyOf(v)))
	return nil
}

func (tx *memTx) Delete(bucket Bucket, k []byte) error {
	t := tx.kv.tree(bucket)
	if tx.kv.dupsort[bucket] {
		// delete every value under k
		var toDel [][]byte
		t.AscendGreaterOrEqual(tx.newItem(bucket, k, nil), func(i llrb.Item) bool {
			it := i.(*item)
			if !bytes.Equal(it.k, k) {
				return false
			}
			toDel = append(toDel, it.v)
			return true
		})
		for _, v := range toDel {
			t.Delete(tx.newItem(bucket, k, v))
		}
		return nil
	}
	t.Delete(tx.newItem(bucket, k, nil))
	return nil
}

func (tx *memTx) DeleteExact(bucket Bucket, k, v []byte) error {
	t := tx.kv.tree(bucket)
	t.Delete(tx.newItem(bucket, k, v))
	return nil
}

func (tx *memTx) Replace(bucket Bucket, k, newV []byte) ([]byte, error) {
	t := tx.kv.tree(bucket)
	old := t.ReplaceOrInsert(tx.newItem(bucket, copyOf(k), copyOf(newV)))
	if old == nil {
		return nil, nil
	}
	return copyOf(old.(*item).v), nil
}

func (tx *memTx) Pop(bucket Bucket, k []byte) ([]byte, error) {
	t := tx.kv.tree(bucket)
	old := t.Delete(tx.newItem(bucket, k, nil))
	if old == nil {
		return nil, nil
	}
	return copyOf(old.(*item).v), nil
}

func (tx *memTx) Cursor(bucket Bucket) Cursor {
	return &memCursor{tx: tx, bucket: bucket}
}

func (tx *memTx) Commit() error { return nil }
func (tx *memTx) Rollback()     {}

// memCursor walks a bucket's tree in (key,value) order. It keeps a simple
// "current" pointer rather than a real B-tree iterator handle, which is
// sufficient for the sequential Seek/Next/Prev access patterns the layer
// and lift code use.
type memCursor struct {
	tx      *memTx
	bucket  Bucket
	current *item
	ok      bool
}

func (c *memCursor) Close() {}

func (c *memCursor) item(k, v []byte) *item { return c.tx.newItem(c.bucket, k, v) }

func (c *memCursor) setCurrent(i llrb.Item) (k, v []byte, err error) {
	if i == nil {
		c.current, c.ok = nil, false
		return nil, nil, nil
	}
	it := i.(*item)
	c.current, c.ok = it, true
	return copyOf(it.k), copyOf(it.v), nil
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte, error) {
	t := c.tx.kv.tree(c.bucket)
	var found llrb.Item
	t.AscendGreaterOrEqual(c.item(seek, nil), func(i llrb.Item) bool {
		found = i
		return false
	})
	return c.setCurrent(found)
}

// SeekExact finds key seek and returns its first value (the smallest value
// in a dup-sort bucket, or the only value in a plain bucket). Implemented
// via AscendGreaterOrEqual rather than a direct tree.Get, since a dup-sort
// bucket's item ordering is (key,value) and a zero-value probe item would
// only Get-match a row whose stored value also happens to be empty.
func (c *memCursor) SeekExact(seek []byte) ([]byte, error) {
	t := c.tx.kv.tree(c.bucket)
	var found *item
	t.AscendGreaterOrEqual(c.item(seek, nil), func(i llrb.Item) bool {
		found = i.(*item)
		return false
	})
	if found == nil || !bytes.Equal(found.k, seek) {
		c.current, c.ok = nil, false
		return nil, nil
	}
	c.current, c.ok = found, true
	return copyOf(found.v), nil
}

func (c *memCursor) First() ([]byte, []byte, error) {
	t := c.tx.kv.tree(c.bucket)
	return c.setCurrent(t.Min())
}

func (c *memCursor) Last() ([]byte, []byte, error) {
	t := c.tx.kv.tree(c.bucket)
	return c.setCurrent(t.Max())
}

func (c *memCursor) Current() ([]byte, []byte, error) {
	if !c.ok {
		return nil, nil, nil
	}
	return copyOf(c.current.k), copyOf(c.current.v), nil
}

func (c *memCursor) Next() ([]byte, []byte, error) {
	if !c.ok {
		return nil, nil, nil
	}
	t := c.tx.kv.tree(c.bucket)
	var next llrb.Item
	seen := false
	t.AscendGreaterOrEqual(c.current, func(i llrb.Item) bool {
		if !seen {
			seen = true
			return true // skip current
		}
		next = i
		return false
	})
	return c.setCurrent(next)
}

func (c *memCursor) Prev() ([]byte, []byte, error) {
	if !c.ok {
		return nil, nil, nil
	}
	t := c.tx.kv.tree(c.bucket)
	var prev llrb.Item
	t.DescendLessOrEqual(c.current, func(i llrb.Item) bool {
		it := i.(*item)
		if it.Less(c.current) {
			prev = i
			return false
		}
		return true // skip current and anything equal
	})
	return c.setCurrent(prev)
}

func (c *memCursor) Put(k, v []byte) error {
	t := c.tx.kv.tree(c.bucket)
	t.ReplaceOrInsert(c.item(copyOf(k), copyOf(v)))
	return nil
}

func (c *memCursor) Delete(k []byte) error {
	t := c.tx.kv.tree(c.bucket)
	if c.ok && bytes.Equal(c.current.k, k) {
		c.current, c.ok = nil, false
	}
	t.Delete(c.item(k, nil))
	return nil
}

func (c *memCursor) Count() (uint64, error) {
	t := c.tx.kv.tree(c.bucket)
	if !c.ok {
		return 0, nil
	}
	var n uint64
	t.AscendGreaterOrEqual(c.item(c.current.k, nil), func(i llrb.Item) bool {
		it := i.(*item)
		if !bytes.Equal(it.k, c.current.k) {
			return false
		}
		n++
		return true
	})
	return n, nil
}
