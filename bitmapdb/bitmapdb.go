// Package bitmapdb is a small in-memory ID-set utility built on
// RoaringBitmap/roaring, adapted from turbo-geth's ethdb/bitmapdb package.
// The teacher version shards a bitmap across fixed-size on-disk chunks
// keyed by (prefix, shard); nothing here persists to disk, since its call
// site (window/ consumer-id tracking) is purely process-local and bounded
// by live connection count, so the sharding logic is dropped (see
// DESIGN.md).
package bitmapdb

import "github.com/RoaringBitmap/roaring"

// Set is a mutable set of uint32 ids.
type Set struct {
	bm *roaring.Bitmap
}

func New() *Set { return &Set{bm: roaring.New()} }

func (s *Set) Add(id uint32)      { s.bm.Add(id) }
func (s *Set) Remove(id uint32)   { s.bm.Remove(id) }
func (s *Set) Contains(id uint32) bool { return s.bm.Contains(id) }
func (s *Set) Len() uint64        { return s.bm.GetCardinality() }

// Each calls f once per member id, in ascending order.
func (s *Set) Each(f func(id uint32)) {
	it := s.bm.Iterator()
	for it.HasNext() {
		f(it.Next())
	}
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set { return &Set{bm: s.bm.Clone()} }
