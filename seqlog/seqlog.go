// Package seqlog implements the append-only sequence log (component L in
// spec.md §4.5): monotonic-offset blobs with an offset-wait primitive for
// consumers that need to block until a given index has been written.
// Ported from original_source/synapse/lib/slabseqn.py's SlabSeqn
// (add/save/iter/iterBack/slice/get/last/index/waitForOffset).
package seqlog

import (
	"container/heap"
	"context"
	"encoding/binary"
	"sync"

	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/mpk"
)

func encodeOffs(offs uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, offs)
	return b
}

func decodeOffs(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// waiter is one pending waitForOffset call, ordered by target offset then
// insertion order (FIFO among ties), matching the source's heap of
// (offs, counter, event) tuples.
type waiter struct {
	offs    uint64
	seq     uint64
	done    chan struct{}
	closeIt sync.Once
}

func (w *waiter) wake() {
	w.closeIt.Do(func() { close(w.done) })
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].offs != h[j].offs {
		return h[i].offs < h[j].offs
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x interface{}) { *h = append(*h, x.(*waiter)) }
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Seqlog is one named append-only sequence: add() assigns the next
// monotonic offset, waitForOffset blocks a caller until that offset (or
// later) has been written.
type Seqlog struct {
	bucket kv.Bucket

	mu sync.Mutex
	// indx is the durable high-water mark: the next offset Index/
	// WaitForOffset observe. pendingIndx is the next offset Add/Save will
	// assign, which runs ahead of indx while a write transaction is in
	// flight but not yet Confirmed; see Confirm/Discard.
	indx        uint64
	pendingIndx uint64
	waiters     waiterHeap
	seqCtr      uint64
}

// Open primes indx from the current high-water mark in bucket (the last
// key present), matching SlabSeqn.nextindx.
func Open(tx kv.Tx, bucket kv.Bucket) (*Seqlog, error) {
	s := &Seqlog{bucket: bucket}
	cur := tx.Cursor(bucket)
	defer cur.Close()
	k, _, err := cur.Last()
	if err != nil {
		return nil, err
	}
	if k != nil {
		s.indx = decodeOffs(k) + 1
	}
	s.pendingIndx = s.indx
	heap.Init(&s.waiters)
	return s, nil
}

// Index returns the durably confirmed next offset that Add will assign.
func (s *Seqlog) Index() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indx
}

// wakeWaiters pops and signals every waiter whose target offset has now
// been reached, under s.mu.
func (s *Seqlog) wakeWaiters() {
	for s.waiters.Len() > 0 && s.waiters[0].offs < s.indx {
		w := heap.Pop(&s.waiters).(*waiter)
		w.wake()
	}
}

// Add appends item, returning the offset it was written at. Runs within
// tx's write transaction. The offset is not durably visible via Index/
// WaitForOffset until the caller's enclosing transaction commits and the
// caller calls Confirm; call Discard instead if the transaction failed.
func (s *Seqlog) Add(tx kv.Tx, item interface{}) (uint64, error) {
	enc, err := mpk.Marshal(item)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	indx := s.pendingIndx
	s.pendingIndx++
	s.mu.Unlock()

	if err := tx.Put(s.bucket, encodeOffs(indx), enc); err != nil {
		return 0, err
	}

	return indx, nil
}

// Save appends a batch of items starting at the current index, returning
// the offset the first item landed at. Matches SlabSeqn.save. Like Add, the
// assigned offsets only become durably visible once the caller calls
// Confirm after its enclosing transaction commits.
func (s *Seqlog) Save(tx kv.Tx, items []interface{}) (uint64, error) {
	s.mu.Lock()
	orig := s.pendingIndx
	s.mu.Unlock()

	indx := orig
	for _, item := range items {
		enc, err := mpk.Marshal(item)
		if err != nil {
			return 0, err
		}
		if err := tx.Put(s.bucket, encodeOffs(indx), enc); err != nil {
			return 0, err
		}
		indx++
	}

	s.mu.Lock()
	s.pendingIndx = indx
	s.mu.Unlock()

	return orig, nil
}

// Confirm advances the durably visible index past lastOffs, the highest
// offset assigned by Add/Save since the last Confirm/Discard, and wakes
// every now-satisfied WaitForOffset waiter. Call once the caller's
// enclosing backend.Update has returned successfully.
func (s *Seqlog) Confirm(lastOffs uint64) {
	s.mu.Lock()
	if lastOffs+1 > s.indx {
		s.indx = lastOffs + 1
	}
	s.pendingIndx = s.indx
	s.wakeWaiters()
	s.mu.Unlock()
}

// Discard abandons every offset assigned by Add/Save since the last
// Confirm/Discard, so the next Add/Save reuses the same offsets. Call when
// the caller's enclosing transaction failed or rolled back.
func (s *Seqlog) Discard() {
	s.mu.Lock()
	s.pendingIndx = s.indx
	s.mu.Unlock()
}

// Get reads a single item at offs.
func (s *Seqlog) Get(tx kv.Tx, offs uint64) (interface{}, bool, error) {
	v, err := tx.Get(s.bucket, encodeOffs(offs))
	if err != nil || v == nil {
		return nil, false, err
	}
	var out interface{}
	if err := mpk.Unmarshal(v, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Last returns the highest-offset item, if any.
func (s *Seqlog) Last(tx kv.Tx) (uint64, interface{}, bool, error) {
	cur := tx.Cursor(s.bucket)
	defer cur.Close()
	k, v, err := cur.Last()
	if err != nil || k == nil {
		return 0, nil, false, err
	}
	var out interface{}
	if err := mpk.Unmarshal(v, &out); err != nil {
		return 0, nil, false, err
	}
	return decodeOffs(k), out, true, nil
}

// ItemYield is called once per (offset, value) during Iter/IterBack.
// Returning (false, nil) stops iteration early.
type ItemYield func(offs uint64, valu interface{}) (bool, error)

// Iter walks forward starting at offs.
func (s *Seqlog) Iter(ctx context.Context, tx kv.Tx, offs uint64, yield ItemYield) error {
	cur := tx.Cursor(s.bucket)
	defer cur.Close()

	k, v, err := cur.Seek(encodeOffs(offs))
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var out interface{}
		if err := mpk.Unmarshal(v, &out); err != nil {
			return err
		}
		more, err := yield(decodeOffs(k), out)
		if err != nil || !more {
			return err
		}
	}
	return err
}

// IterBack walks backward starting at offs (inclusive downward from the
// nearest key <= offs).
func (s *Seqlog) IterBack(ctx context.Context, tx kv.Tx, offs uint64, yield ItemYield) error {
	cur := tx.Cursor(s.bucket)
	defer cur.Close()

	k, v, err := cur.Seek(encodeOffs(offs))
	if err != nil {
		return err
	}
	if k == nil {
		k, v, err = cur.Last()
		if err != nil {
			return err
		}
	} else if decodeOffs(k) > offs {
		k, v, err = cur.Prev()
		if err != nil {
			return err
		}
	}

	for ; k != nil; k, v, err = cur.Prev() {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var out interface{}
		if err := mpk.Unmarshal(v, &out); err != nil {
			return err
		}
		more, err := yield(decodeOffs(k), out)
		if err != nil || !more {
			return err
		}
	}
	return err
}

// Slice returns at most size items starting at offs.
func (s *Seqlog) Slice(ctx context.Context, tx kv.Tx, offs uint64, size int) ([]uint64, []interface{}, error) {
	var offsets []uint64
	var vals []interface{}
	err := s.Iter(ctx, tx, offs, func(o uint64, v interface{}) (bool, error) {
		offsets = append(offsets, o)
		vals = append(vals, v)
		return len(offsets) < size, nil
	})
	return offsets, vals, err
}

// WaitForOffset blocks until offs has been written, ctx is done, or the
// provided timeout (via ctx) elapses. Returns true if the offset was
// reached, false if ctx ended first.
func (s *Seqlog) WaitForOffset(ctx context.Context, offs uint64) (bool, error) {
	s.mu.Lock()
	if offs < s.indx {
		s.mu.Unlock()
		return true, nil
	}
	w := &waiter{offs: offs, seq: s.seqCtr, done: make(chan struct{})}
	s.seqCtr++
	heap.Push(&s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.done:
		return true, nil
	case <-ctx.Done():
		w.wake() // mark closed so a racing wakeWaiters doesn't double-close
		return false, ctx.Err()
	}
}
