package layer

import (
	"bytes"
	"context"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/stortype"
)

const fairIters = 1000 // spec.md §5: long scans yield roughly every 1000 rows

// indxBy adapts one dup-sort bucket, abbreviation prefix pair into
// stortype.IndxBy, matching layer.py's IndxBy/IndxByForm/IndxByProp family.
type indxBy struct {
	l      *Layer
	tx     kv.Tx
	bucket kv.Bucket
	abrv   []byte
	prop   string // propname re-read by GetNodeValu; empty for form/tag adapters
}

func (ib *indxBy) prefKey(indx []byte) []byte {
	return append(append([]byte{}, ib.abrv...), indx...)
}

func cooperativeCheck(ctx context.Context, n int) error {
	if n%fairIters != 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (ib *indxBy) BuidsByDups(ctx context.Context, indx []byte, yield stortype.Yield) error {
	key := ib.prefKey(indx)
	cur := ib.tx.Cursor(ib.bucket)
	defer cur.Close()

	n := 0
	k, v, err := cur.Seek(key)
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, key) || len(k) != len(key) {
			break
		}
		if err := cooperativeCheck(ctx, n); err != nil {
			return err
		}
		n++
		var b stortype.Buid
		copy(b[:], v)
		more, err := yield(b)
		if err != nil || !more {
			return err
		}
	}
	return err
}

func (ib *indxBy) scanByPrefix(ctx context.Context, prefix []byte, yield stortype.KeyYield) error {
	cur := ib.tx.Cursor(ib.bucket)
	defer cur.Close()

	n := 0
	var k, v []byte
	var err error
	if prefix == nil {
		k, v, err = cur.First()
	} else {
		k, v, err = cur.Seek(prefix)
	}
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		if prefix != nil && !bytes.HasPrefix(k, prefix) {
			break
		}
		if err := cooperativeCheck(ctx, n); err != nil {
			return err
		}
		n++
		var b stortype.Buid
		copy(b[:], v)
		more, err := yield(k, b)
		if err != nil || !more {
			return err
		}
	}
	return err
}

func (ib *indxBy) BuidsByPref(ctx context.Context, indx []byte, yield stortype.Yield) error {
	return ib.scanByPrefix(ctx, ib.prefKey(indx), func(k []byte, b stortype.Buid) (bool, error) {
		return yield(b)
	})
}

func (ib *indxBy) ScanByPref(ctx context.Context, indx []byte, yield stortype.KeyYield) error {
	var prefix []byte
	if indx != nil {
		prefix = ib.prefKey(indx)
	} else {
		prefix = ib.abrv
	}
	return ib.scanByPrefix(ctx, prefix, yield)
}

func (ib *indxBy) scanByRangeRaw(ctx context.Context, lo, hi []byte, yield stortype.KeyYield) error {
	cur := ib.tx.Cursor(ib.bucket)
	defer cur.Close()

	n := 0
	k, v, err := cur.Seek(lo)
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		if bytes.Compare(k, hi) > 0 {
			break
		}
		if err := cooperativeCheck(ctx, n); err != nil {
			return err
		}
		n++
		var b stortype.Buid
		copy(b[:], v)
		more, err := yield(k, b)
		if err != nil || !more {
			return err
		}
	}
	return err
}

func (ib *indxBy) BuidsByRange(ctx context.Context, lo, hi []byte, yield stortype.Yield) error {
	return ib.scanByRangeRaw(ctx, ib.prefKey(lo), ib.prefKey(hi), func(k []byte, b stortype.Buid) (bool, error) {
		return yield(b)
	})
}

func (ib *indxBy) ScanByRange(ctx context.Context, lo, hi []byte, yield stortype.KeyYield) error {
	return ib.scanByRangeRaw(ctx, ib.prefKey(lo), ib.prefKey(hi), yield)
}

func (ib *indxBy) GetNodeValu(ctx context.Context, b stortype.Buid) (interface{}, error) {
	return ib.l.GetNodeValu(ib.tx, b, ib.prop)
}

func newFormIndxBy(l *Layer, tx kv.Tx, form string) (*indxBy, error) {
	abrv, err := l.tables.PropAbrv(tx, form, "")
	if err != nil {
		return nil, err
	}
	return &indxBy{l: l, tx: tx, bucket: dbutils.ByProp, abrv: abrv, prop: ""}, nil
}

func newPropIndxBy(l *Layer, tx kv.Tx, form, prop string) (*indxBy, error) {
	abrv, err := l.tables.PropAbrv(tx, form, prop)
	if err != nil {
		return nil, err
	}
	return &indxBy{l: l, tx: tx, bucket: dbutils.ByProp, abrv: abrv, prop: prop}, nil
}

func newPropArrayIndxBy(l *Layer, tx kv.Tx, form, prop string) (*indxBy, error) {
	abrv, err := l.tables.PropAbrv(tx, form, prop)
	if err != nil {
		return nil, err
	}
	return &indxBy{l: l, tx: tx, bucket: dbutils.ByArray, abrv: abrv, prop: prop}, nil
}

func newTagPropIndxBy(l *Layer, tx kv.Tx, form, tag, prop string) (*indxBy, error) {
	abrv, err := l.tables.TagPropAbrv(tx, form, tag, prop)
	if err != nil {
		return nil, err
	}
	return &indxBy{l: l, tx: tx, bucket: dbutils.ByTagProp, abrv: abrv, prop: prop}, nil
}

// StorNodeYield is called once per lifted node; returning (false, nil)
// stops the lift early.
type StorNodeYield func(*StorNode) (bool, error)

func (l *Layer) yieldBuids(ctx context.Context, tx kv.Tx, buids []stortype.Buid, yield StorNodeYield) error {
	for _, b := range buids {
		sn, err := l.GetStorNode(ctx, tx, b)
		if err != nil {
			return err
		}
		if l.metrics != nil {
			l.metrics.LiftsTotal.Inc()
		}
		more, err := yield(sn)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func collectBuids(ctx context.Context, run func(stortype.Yield) error) ([]stortype.Buid, error) {
	var out []stortype.Buid
	err := run(func(b stortype.Buid) (bool, error) {
		out = append(out, b)
		return true, nil
	})
	return out, err
}

// LiftByProp lifts every node that carries prop on form, matching
// liftByProp's prefix scan over byprop.
func (l *Layer) LiftByProp(ctx context.Context, tx kv.Tx, form, prop string, yield StorNodeYield) error {
	ib, err := newPropIndxBy(l, tx, form, prop)
	if err != nil {
		return err
	}
	buids, err := collectBuids(ctx, func(y stortype.Yield) error {
		return ib.ScanByPref(ctx, nil, func(k []byte, b stortype.Buid) (bool, error) { return y(b) })
	})
	if err != nil {
		return err
	}
	return l.yieldBuids(ctx, tx, buids, yield)
}

// CmprValu is one (comparator, value, stortype) triple, as the source's
// cmprvals lists carry.
type CmprValu struct {
	Cmpr string
	Valu interface{}
	Kind stortype.Code
}

func dispatchFor(kind stortype.Code) (stortype.Handler, stortype.Code, error) {
	effective := kind
	if effective.IsArray() {
		effective = stortype.MSGP
	}
	h, err := stortype.Dispatch(effective)
	return h, effective, err
}

// LiftByFormValu lifts nodes whose form value matches a cmprval, running
// each cmprval in turn (a node matching several is yielded once per
// match), ported from liftByFormValu.
func (l *Layer) LiftByFormValu(ctx context.Context, tx kv.Tx, form string, cmprvals []CmprValu, yield StorNodeYield) error {
	ib, err := newFormIndxBy(l, tx, form)
	if err != nil {
		return err
	}
	for _, cv := range cmprvals {
		h, _, err := dispatchFor(cv.Kind)
		if err != nil {
			return err
		}
		buids, err := collectBuids(ctx, func(y stortype.Yield) error {
			return stortype.Lift(ctx, h, ib, cv.Cmpr, cv.Valu, y)
		})
		if err != nil {
			return err
		}
		if err := l.yieldBuids(ctx, tx, buids, yield); err != nil {
			return err
		}
	}
	return nil
}

// LiftByPropValu lifts nodes whose named prop matches a cmprval, running
// each cmprval in turn (a node matching several is yielded once per
// match), ported from liftByPropValu (array-typed cmprvals fold onto MSGP, same as
// the source).
func (l *Layer) LiftByPropValu(ctx context.Context, tx kv.Tx, form, prop string, cmprvals []CmprValu, yield StorNodeYield) error {
	ib, err := newPropIndxBy(l, tx, form, prop)
	if err != nil {
		return err
	}
	for _, cv := range cmprvals {
		h, _, err := dispatchFor(cv.Kind)
		if err != nil {
			return err
		}
		buids, err := collectBuids(ctx, func(y stortype.Yield) error {
			return stortype.Lift(ctx, h, ib, cv.Cmpr, cv.Valu, y)
		})
		if err != nil {
			return err
		}
		if err := l.yieldBuids(ctx, tx, buids, yield); err != nil {
			return err
		}
	}
	return nil
}

// LiftByPropArray lifts nodes via per-element array indexes, ported from
// liftByPropArray.
func (l *Layer) LiftByPropArray(ctx context.Context, tx kv.Tx, form, prop string, cmprvals []CmprValu, yield StorNodeYield) error {
	ib, err := newPropArrayIndxBy(l, tx, form, prop)
	if err != nil {
		return err
	}
	for _, cv := range cmprvals {
		h, err := stortype.Dispatch(cv.Kind.RealType())
		if err != nil {
			return err
		}
		buids, err := collectBuids(ctx, func(y stortype.Yield) error {
			return stortype.Lift(ctx, h, ib, cv.Cmpr, cv.Valu, y)
		})
		if err != nil {
			return err
		}
		if err := l.yieldBuids(ctx, tx, buids, yield); err != nil {
			return err
		}
	}
	return nil
}

// LiftByTag lifts every node bearing tag (optionally restricted to form),
// ported from liftByTag.
func (l *Layer) LiftByTag(ctx context.Context, tx kv.Tx, tag, form string, yield StorNodeYield) error {
	tagAbrv, err := l.tables.TagAbrv(tx, tag)
	if err != nil {
		return err
	}
	prefix := tagAbrv
	if form != "" {
		formAbrv, err := l.tables.PropAbrv(tx, form, "")
		if err != nil {
			return err
		}
		prefix = append(append([]byte{}, tagAbrv...), formAbrv...)
	}

	ib := &indxBy{l: l, tx: tx, bucket: dbutils.ByTag, abrv: prefix}
	buids, err := collectBuids(ctx, func(y stortype.Yield) error {
		return ib.ScanByPref(ctx, nil, func(k []byte, b stortype.Buid) (bool, error) { return y(b) })
	})
	if err != nil {
		return err
	}
	return l.yieldBuids(ctx, tx, buids, yield)
}

// TagFilt is a post-lift predicate over a tag's stored (tick,tock)
// interval value, ported from StorTypeTag.getTagFilt's comparator table.
type TagFilt func(valu interface{}) bool

// LiftByTagValu lifts every node bearing tag whose value matches filt,
// ported from liftByTagValu: the tag-membership prefix scan is unfiltered
// (bytag carries no value ordering), so every candidate is re-read via
// getNodeTag and filtered in Go.
func (l *Layer) LiftByTagValu(ctx context.Context, tx kv.Tx, tag, form string, filt TagFilt, yield StorNodeYield) error {
	tagAbrv, err := l.tables.TagAbrv(tx, tag)
	if err != nil {
		return err
	}
	prefix := tagAbrv
	if form != "" {
		formAbrv, err := l.tables.PropAbrv(tx, form, "")
		if err != nil {
			return err
		}
		prefix = append(append([]byte{}, tagAbrv...), formAbrv...)
	}

	ib := &indxBy{l: l, tx: tx, bucket: dbutils.ByTag, abrv: prefix}
	buids, err := collectBuids(ctx, func(y stortype.Yield) error {
		return ib.ScanByPref(ctx, nil, func(k []byte, b stortype.Buid) (bool, error) { return y(b) })
	})
	if err != nil {
		return err
	}

	return l.yieldBuids(ctx, tx, buids, func(sn *StorNode) (bool, error) {
		valu, ok, err := l.GetNodeTag(tx, sn.Buid, tag)
		if err != nil {
			return false, err
		}
		if !ok || !filt(valu) {
			return true, nil
		}
		return yield(sn)
	})
}

// LiftByTagProp lifts every node with a value for (form, tag, prop),
// ported from liftByTagProp.
func (l *Layer) LiftByTagProp(ctx context.Context, tx kv.Tx, form, tag, prop string, yield StorNodeYield) error {
	ib, err := newTagPropIndxBy(l, tx, form, tag, prop)
	if err != nil {
		return err
	}
	buids, err := collectBuids(ctx, func(y stortype.Yield) error {
		return ib.ScanByPref(ctx, nil, func(k []byte, b stortype.Buid) (bool, error) { return y(b) })
	})
	if err != nil {
		return err
	}
	return l.yieldBuids(ctx, tx, buids, yield)
}

// LiftByTagPropValu lifts nodes whose (form, tag, prop) value matches a
// cmprval, running each cmprval in turn (a node matching several is
// yielded once per match), ported from liftByTagPropValu.
func (l *Layer) LiftByTagPropValu(ctx context.Context, tx kv.Tx, form, tag, prop string, cmprvals []CmprValu, yield StorNodeYield) error {
	ib, err := newTagPropIndxBy(l, tx, form, tag, prop)
	if err != nil {
		return err
	}
	for _, cv := range cmprvals {
		h, err := stortype.Dispatch(cv.Kind.RealType())
		if err != nil {
			return err
		}
		buids, err := collectBuids(ctx, func(y stortype.Yield) error {
			return stortype.Lift(ctx, h, ib, cv.Cmpr, cv.Valu, y)
		})
		if err != nil {
			return err
		}
		if err := l.yieldBuids(ctx, tx, buids, yield); err != nil {
			return err
		}
	}
	return nil
}

// HasTagProp reports whether any node carries a value for the bare prop
// name under any form/tag, ported from hasTagProp.
func (l *Layer) HasTagProp(ctx context.Context, tx kv.Tx, prop string) (bool, error) {
	abrv, err := l.tables.TagPropAbrv(tx, "", "", prop)
	if err != nil {
		return false, err
	}
	found := false
	ib := &indxBy{l: l, tx: tx, bucket: dbutils.ByTagProp, abrv: abrv}
	err = ib.ScanByPref(ctx, nil, func(k []byte, b stortype.Buid) (bool, error) {
		found = true
		return false, nil
	})
	return found, err
}

// GetNodeData reads one opaque blob for buid, ported from the source's
// nodedata row convention.
func (l *Layer) GetNodeData(tx kv.Tx, buid Buid, name string) (interface{}, bool, error) {
	abrv, err := l.tables.PropAbrv(tx, name, "")
	if err != nil {
		return nil, false, err
	}
	key := append(append([]byte{}, buid[:]...), abrv...)
	v, err := tx.Get(dbutils.NodeData, key)
	if err != nil || v == nil {
		return nil, false, err
	}
	var valu interface{}
	if err := mpk.Unmarshal(v, &valu); err != nil {
		return nil, false, err
	}
	return valu, true, nil
}

// NodeDataYield receives one (name, value) pair during IterNodeData.
type NodeDataYield func(name string, valu interface{}) (bool, error)

// IterNodeData walks every nodedata row for buid, re-reading each
// abbreviation back to its (name, None) tuple via the abbreviator.
func (l *Layer) IterNodeData(ctx context.Context, tx kv.Tx, buid Buid, yield NodeDataYield) error {
	cur := tx.Cursor(dbutils.NodeData)
	defer cur.Close()

	n := 0
	k, v, err := cur.Seek(buid[:])
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return err
		}
		if len(k) < 32 || !bytes.Equal(k[:32], buid[:]) {
			break
		}
		if err := cooperativeCheck(ctx, n); err != nil {
			return err
		}
		n++

		abrvID := k[32:]
		nameBytes, err := l.tables.Prop.AbrvToByts(tx, abrvID)
		if err != nil {
			continue // tolerate a dangling abbreviation, per spec.md §7 read-time tolerance
		}
		var pair [2]string
		if err := mpk.Unmarshal(nameBytes, &pair); err != nil {
			continue
		}
		var valu interface{}
		if err := mpk.Unmarshal(v, &valu); err != nil {
			return err
		}
		more, err := yield(pair[0], valu)
		if err != nil || !more {
			return err
		}
	}
	return err
}
