package layer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerwatch/graphlayer/abrv"
	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/hotcount"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/metrics"
	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/seqlog"
	"github.com/ledgerwatch/graphlayer/stortype"
	"github.com/ledgerwatch/graphlayer/window"
)

const offsetNodeEditApplied = "nodeedit:applied"

// Layer is one storage layer instance: the KV backend plus everything
// wired on top of it (abbreviator, hot counter, sequence log, live-window
// fanout). Ported from layer.py's Layer class __anit__ wiring.
type Layer struct {
	backend kv.KV
	tables  *abrv.Tables
	counts  *hotcount.HotCount // key "form:"+form -> node count
	offsets *hotcount.HotCount // key name -> durable offset/cursor value
	edits   *seqlog.Seqlog     // node-edit log
	splices *seqlog.Seqlog     // optional legacy splice log (fallback mode)
	windows *window.Fanout
	metrics *metrics.Layer // optional; set via SetMetrics

	fallback bool

	// writeMu serializes storNodeEdits calls so log offsets form a total
	// order, matching spec.md §5's "per-layer write lock ... nexus".
	writeMu sync.Mutex
}

// Config controls layer construction.
type Config struct {
	Fallback       bool // also maintain the legacy splice log
	WindowCapacity int  // per-consumer live-window queue depth; 0 means default
}

// Open wires a Layer on top of an already-schema'd backend. The caller is
// responsible for having opened backend with every bucket in
// common/dbutils.Buckets plus the bucket edits was opened on, since every
// log append runs inside backend's own write transaction. Open does not
// touch a splice log.
func Open(ctx context.Context, backend kv.KV, edits *seqlog.Seqlog, cfg Config) (*Layer, error) {
	l := &Layer{
		backend: backend,
		tables: abrv.NewTables(
			dbutils.TagAbrvFwd, dbutils.TagAbrvRev,
			dbutils.PropAbrvFwd, dbutils.PropAbrvRev,
			dbutils.TagPropAbrvFwd, dbutils.TagPropAbrvRev,
		),
		counts:   hotcount.New(dbutils.Counters),
		offsets:  hotcount.New(dbutils.Counters),
		edits:    edits,
		windows:  window.NewWithCapacity(cfg.WindowCapacity),
		fallback: cfg.Fallback,
	}

	err := backend.Update(ctx, func(tx kv.Tx) error {
		if err := l.tables.Prime(tx); err != nil {
			return err
		}
		if err := l.counts.Load(tx); err != nil {
			return err
		}
		return l.offsets.Load(tx)
	})
	if err != nil {
		return nil, err
	}

	if err := l.replay(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// getStorIndx returns one index byte string per real-type element of valu
// under code, handling the array flag exactly as layer.py's getStorIndx.
func getStorIndx(code stortype.Code, valu interface{}) ([][]byte, error) {
	if code.IsArray() {
		return stortype.IndxArray(code, valu)
	}
	h, err := stortype.Dispatch(code)
	if err != nil {
		return nil, err
	}
	indx, err := h.Indx(valu)
	if err != nil {
		return nil, err
	}
	return [][]byte{indx}, nil
}

// wholeArrayIndx returns the single MSGP-hash index string used for the
// byprop row of an array-typed value (as opposed to its per-element
// byarray rows).
func wholeArrayIndx(valu interface{}) ([][]byte, error) {
	indx, err := stortype.WholeArrayIndx(valu)
	if err != nil {
		return nil, err
	}
	return [][]byte{indx}, nil
}

func ndefKey(buid Buid) []byte {
	return append(append([]byte{}, buid[:]...), flagNdef)
}

func propKey(buid Buid, prop string) []byte {
	k := append([]byte{}, buid[:]...)
	k = append(k, flagProp)
	return append(k, []byte(prop)...)
}

func tagKey(buid Buid, tag string) []byte {
	k := append([]byte{}, buid[:]...)
	k = append(k, flagTag)
	return append(k, []byte(tag)...)
}

func tagPropKey(buid Buid, tag, prop string) []byte {
	k := append([]byte{}, buid[:]...)
	k = append(k, flagTagProp)
	k = append(k, []byte(tag)...)
	k = append(k, ':')
	return append(k, []byte(prop)...)
}

// StorNode is a potentially-incomplete view of one node's stored rows,
// returned by getStorNode. Mirrors layer.py's (buid, info) pode shape.
type StorNode struct {
	Buid     Buid
	HasNdef  bool
	Form     string
	Valu     interface{}
	Props    map[string]interface{}
	Tags     map[string]interface{}
	TagProps map[[2]string]interface{} // (tag, prop) -> value
}

// GetStorNode reassembles every row for buid into one StorNode.
func (l *Layer) GetStorNode(ctx context.Context, tx kv.Tx, buid Buid) (*StorNode, error) {
	sn := &StorNode{Buid: buid, Props: map[string]interface{}{}, Tags: map[string]interface{}{}, TagProps: map[[2]string]interface{}{}}

	cur := tx.Cursor(dbutils.ByBuid)
	defer cur.Close()

	prefix := buid[:]
	k, v, err := cur.Seek(prefix)
	for ; k != nil; k, v, err = cur.Next() {
		if err != nil {
			return nil, err
		}
		if len(k) < 32 || string(k[:32]) != string(prefix) {
			break
		}
		flag := k[32]
		switch flag {
		case flagNdef:
			var row ndefRow
			if err := mpk.Unmarshal(v, &row); err != nil {
				return nil, err
			}
			sn.HasNdef = true
			sn.Form = row.Form
			sn.Valu = row.Valu
		case flagProp:
			name := string(k[33:])
			var row propRow
			if err := mpk.Unmarshal(v, &row); err != nil {
				return nil, err
			}
			sn.Props[name] = row.Valu
		case flagTag:
			name := string(k[33:])
			var valu interface{}
			if err := mpk.Unmarshal(v, &valu); err != nil {
				return nil, err
			}
			sn.Tags[name] = valu
		case flagTagProp:
			rest := string(k[33:])
			tag, prop, ok := splitTagProp(rest)
			if !ok {
				continue
			}
			var row propRow
			if err := mpk.Unmarshal(v, &row); err != nil {
				return nil, err
			}
			sn.TagProps[[2]string{tag, prop}] = row.Valu
		}
	}
	return sn, nil
}

func splitTagProp(s string) (tag, prop string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// GetNodeValu returns the form value (prop=="") or a named prop's value.
func (l *Layer) GetNodeValu(tx kv.Tx, buid Buid, prop string) (interface{}, error) {
	var key []byte
	if prop == "" {
		key = ndefKey(buid)
	} else {
		key = propKey(buid, prop)
	}
	v, err := tx.Get(dbutils.ByBuid, key)
	if err != nil || v == nil {
		return nil, err
	}
	if prop == "" {
		var row ndefRow
		if err := mpk.Unmarshal(v, &row); err != nil {
			return nil, err
		}
		return row.Valu, nil
	}
	var row propRow
	if err := mpk.Unmarshal(v, &row); err != nil {
		return nil, err
	}
	return row.Valu, nil
}

// GetNodeTag returns a tag's value (nil for a boolean tag with no
// interval), and whether the tag is present at all.
func (l *Layer) GetNodeTag(tx kv.Tx, buid Buid, tag string) (interface{}, bool, error) {
	v, err := tx.Get(dbutils.ByBuid, tagKey(buid, tag))
	if err != nil || v == nil {
		return nil, false, err
	}
	var valu interface{}
	if err := mpk.Unmarshal(v, &valu); err != nil {
		return nil, false, err
	}
	return valu, true, nil
}

// Windows exposes the live-window fanout for external subscribers such as
// the fallback splice writer; syncer peers read the node-edit log through
// SyncNodeEdits instead.
func (l *Layer) Windows() *window.Fanout { return l.windows }

// SetMetrics wires m into this layer's write path (EditsApplied/
// NodeEditOffset) and its live-window fanout (WindowDropped). Optional;
// every metrics update is a no-op until this has been called.
func (l *Layer) SetMetrics(m *metrics.Layer) {
	l.metrics = m
	if m != nil {
		l.windows.SetDropCounter(m.WindowDropped)
	}
}

// Tables exposes the abbreviator for lift-path callers that need to turn a
// (form, prop) or (form, tag, prop) tuple into its index prefix.
func (l *Layer) Tables() *abrv.Tables { return l.tables }

// Backend exposes the underlying KV handle for read-only lift operations.
func (l *Layer) Backend() kv.KV { return l.backend }

func errNodeEdit(kind EditKind, err error) error {
	return fmt.Errorf("layer: edit kind %d: %w", kind, err)
}
