// Package abrv implements the name abbreviator (component A in spec.md
// §4.3): a durable bidirectional mapping from arbitrary byte strings to
// monotonically-assigned 8-byte identifiers, fronted by a process-local
// read cache. Ported from layer.py's NameAbrv usage
// (getPropAbrv/getTagPropAbrv/getAbrvProp, bytsToAbrv/abrvToByts) and the
// slab-backed abbreviation tables it reads/writes (tagabrv, propabrv,
// tagpropabrv).
package abrv

import (
	"encoding/binary"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/mpk"
)

const cacheSize = 10000

// Abrv is one named abbreviation table (tagabrv, propabrv, tagpropabrv),
// backed by a forward bucket (bytes -> 8-byte id) and a reverse bucket
// (8-byte id -> bytes). Assignment is durable and monotonic: once an id is
// handed out for a byte string it is never reused or changed, matching
// spec.md's I7 invariant.
type Abrv struct {
	fwdBucket, revBucket kv.Bucket

	mu      sync.Mutex // serializes the read-modify-write allocate sequence, and guards pending
	nextSeq uint64     // next id to hand out; primed lazily from storage

	cache   *lru.Cache        // []byte(key) -> uint64, read-side accelerator over durably committed rows only
	pending map[string]uint64 // entries read/allocated under a transaction that hasn't committed yet
}

// New builds an abbreviator over the given forward/reverse buckets. Call
// Prime once at startup (within a View) to seed the monotonic counter from
// the backend's current high-water mark.
func New(fwdBucket, revBucket kv.Bucket) *Abrv {
	c, _ := lru.New(cacheSize)
	return &Abrv{fwdBucket: fwdBucket, revBucket: revBucket, cache: c}
}

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// Prime scans the reverse bucket's last key to recover the next id to
// allocate after a restart. Must run before any BytsToAbrv call on a
// freshly opened backend.
func (a *Abrv) Prime(tx kv.Tx) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := tx.Cursor(a.revBucket)
	defer cur.Close()
	k, _, err := cur.Last()
	if err != nil {
		return err
	}
	if k == nil {
		a.nextSeq = 0
		return nil
	}
	a.nextSeq = decodeID(k) + 1
	return nil
}

// BytsToAbrv returns the 8-byte id for byts, allocating and durably
// recording a new one under the same write transaction if it doesn't
// already exist. Must be called inside the same write transaction as the
// edit it supports, per spec.md §4.5's "Shared resources" note.
//
// Neither branch below touches the read cache directly: a row read via
// tx.Get may only be this transaction's own uncommitted write (read-your-
// writes), and a freshly allocated row is uncommitted by definition. Both
// land in pending instead, and only become visible to other callers via
// Confirm once the caller's enclosing transaction has actually committed;
// see Confirm/Discard.
func (a *Abrv) BytsToAbrv(tx kv.Tx, byts []byte) ([]byte, error) {
	if v, ok := a.cache.Get(string(byts)); ok {
		return encodeID(v.(uint64)), nil
	}

	existing, err := tx.Get(a.fwdBucket, byts)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		a.stage(byts, decodeID(existing))
		return existing, nil
	}

	a.mu.Lock()
	id := a.nextSeq
	a.nextSeq++
	a.mu.Unlock()

	idb := encodeID(id)
	if err := tx.Put(a.fwdBucket, byts, idb); err != nil {
		return nil, err
	}
	if err := tx.Put(a.revBucket, idb, byts); err != nil {
		return nil, err
	}
	a.stage(byts, id)
	return idb, nil
}

func (a *Abrv) stage(byts []byte, id uint64) {
	a.mu.Lock()
	if a.pending == nil {
		a.pending = make(map[string]uint64, 1)
	}
	a.pending[string(byts)] = id
	a.mu.Unlock()
}

// Confirm moves every abbreviation staged since the last Confirm/Discard
// into the read cache. Call once the caller's enclosing backend.Update (or
// backend.View) has returned successfully.
func (a *Abrv) Confirm() {
	a.mu.Lock()
	for k, v := range a.pending {
		a.cache.Add(k, v)
	}
	a.pending = nil
	a.mu.Unlock()
}

// Discard drops every abbreviation staged since the last Confirm/Discard
// without caching it. Call when the caller's enclosing transaction failed
// or rolled back. The id counter is not rewound: the next BytsToAbrv call
// for a byte string whose row was never committed allocates a fresh id,
// and the uncommitted id is skipped.
func (a *Abrv) Discard() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// AbrvToByts reverses an id back to its original byte string.
func (a *Abrv) AbrvToByts(tx kv.Tx, abrv []byte) ([]byte, error) {
	byts, err := tx.Get(a.revBucket, abrv)
	if err != nil {
		return nil, err
	}
	if byts == nil {
		return nil, fmt.Errorf("abrv: no such abbreviation %x", abrv)
	}
	return byts, nil
}

// Tables bundles the three abbreviators a layer needs, matching layer.py's
// self.tagabrv / self.propabrv / self.tagpropabrv.
type Tables struct {
	Tag     *Abrv
	Prop    *Abrv
	TagProp *Abrv
}

// PropAbrv abbreviates a (form, prop) pair, where form == "" stands for the
// source's None (a universal, form-less property).
func (t *Tables) PropAbrv(tx kv.Tx, form, prop string) ([]byte, error) {
	enc, err := mpk.Marshal([2]string{form, prop})
	if err != nil {
		return nil, err
	}
	return t.Prop.BytsToAbrv(tx, enc)
}

// TagPropAbrv abbreviates a (form, tag, prop) triple.
func (t *Tables) TagPropAbrv(tx kv.Tx, form, tag, prop string) ([]byte, error) {
	enc, err := mpk.Marshal([3]string{form, tag, prop})
	if err != nil {
		return nil, err
	}
	return t.TagProp.BytsToAbrv(tx, enc)
}

// TagAbrv abbreviates a bare tag string.
func (t *Tables) TagAbrv(tx kv.Tx, tag string) ([]byte, error) {
	return t.Tag.BytsToAbrv(tx, []byte(tag))
}

// Confirm commits every abbreviation staged across all three tables since
// the last Confirm/Discard into their read caches. Call once the caller's
// enclosing backend.Update (or backend.View) has returned successfully.
func (t *Tables) Confirm() {
	t.Tag.Confirm()
	t.Prop.Confirm()
	t.TagProp.Confirm()
}

// Discard drops every abbreviation staged across all three tables since the
// last Confirm/Discard. Call when the caller's enclosing transaction failed.
func (t *Tables) Discard() {
	t.Tag.Discard()
	t.Prop.Discard()
	t.TagProp.Discard()
}

// Prime seeds all three tables' monotonic counters from storage.
func (t *Tables) Prime(tx kv.Tx) error {
	if err := t.Tag.Prime(tx); err != nil {
		return err
	}
	if err := t.Prop.Prime(tx); err != nil {
		return err
	}
	return t.TagProp.Prime(tx)
}

// NewTables builds the three standard abbreviators over the bucket set
// declared in common/dbutils.
func NewTables(tagFwd, tagRev, propFwd, propRev, tagpropFwd, tagpropRev kv.Bucket) *Tables {
	return &Tables{
		Tag:     New(tagFwd, tagRev),
		Prop:    New(propFwd, propRev),
		TagProp: New(tagpropFwd, tagpropRev),
	}
}
