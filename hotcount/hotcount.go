// Package hotcount implements the hot counter (component H in spec.md
// §4.4): a small named counter map that coalesces writes in memory and
// flushes to the backend only for dirty entries. Used for per-form node
// counts and the node-edit offset bookkeeping. Ported from layer.py's
// getHotCount usage (self.formcounts, self.offsets: .get/.set/.inc/.pack).
package hotcount

import (
	"encoding/binary"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/ledgerwatch/graphlayer/kv"
)

// HotCount is one named counter table: an in-memory cache of int64 values
// keyed by name, backed durably by bucket, with a dirty set (tracked as a
// roaring bitmap over cache-slot indexes) so Flush only writes what
// changed since the last flush. Mirrors the source's CountDict/HotCount
// slab helper, repurposing RoaringBitmap/roaring (otherwise used for the
// teacher's on-disk sharded bitmaps) as the in-memory dirty-index set.
type HotCount struct {
	bucket kv.Bucket

	mu    sync.Mutex
	cache map[string]int64
	index map[string]uint32 // name -> dirty-bitmap slot, assigned on first touch
	names []string          // slot -> name, inverse of index
	dirty *roaring.Bitmap
}

// New builds a hot counter over bucket. Call Load once at startup (inside
// a View) to prime the cache from durable storage.
func New(bucket kv.Bucket) *HotCount {
	return &HotCount{
		bucket: bucket,
		cache:  make(map[string]int64),
		index:  make(map[string]uint32),
		dirty:  roaring.New(),
	}
}

func decodeI64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func encodeI64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Load scans every persisted entry into the cache.
func (h *HotCount) Load(tx kv.Tx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := tx.Cursor(h.bucket)
	defer cur.Close()
	for k, v, err := cur.First(); k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		name := string(k)
		h.cache[name] = decodeI64(v)
		h.slot(name)
	}
	return nil
}

// slot assigns (or returns) name's dirty-bitmap index, without locking —
// callers must already hold h.mu.
func (h *HotCount) slot(name string) uint32 {
	if s, ok := h.index[name]; ok {
		return s
	}
	s := uint32(len(h.names))
	h.index[name] = s
	h.names = append(h.names, name)
	return s
}

// Has reports whether name has ever been touched (matches the source's
// `name in offsets.cache` checks used to detect "never applied").
func (h *HotCount) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.cache[name]
	return ok
}

// Get returns name's current value (0 if never set).
func (h *HotCount) Get(name string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache[name]
}

// Set overwrites name's value, marking it dirty.
func (h *HotCount) Set(name string, v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[name] = v
	h.dirty.Add(h.slot(name))
}

// Inc adds delta to name's current value; a negative delta decrements it,
// as NODE_DEL does with -1 for its form's count.
func (h *HotCount) Inc(name string, delta int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[name] += delta
	h.dirty.Add(h.slot(name))
}

// Pack returns a snapshot copy of every counter, keyed by name.
func (h *HotCount) Pack() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int64, len(h.cache))
	for k, v := range h.cache {
		out[k] = v
	}
	return out
}

// Flush writes every dirty counter to tx and clears the dirty set. Must be
// called within the same write transaction as the edits that dirtied it,
// so a crash never leaves the cache ahead of the backend.
func (h *HotCount) Flush(tx kv.Tx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	it := h.dirty.Iterator()
	for it.HasNext() {
		slot := it.Next()
		name := h.names[slot]
		if err := tx.Put(h.bucket, []byte(name), encodeI64(h.cache[name])); err != nil {
			return err
		}
	}
	h.dirty.Clear()
	return nil
}
