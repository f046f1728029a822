package layer

import (
	"bytes"
	"context"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/stortype"
)

// NodeEditBatch is one logged entry as replayed to a collaborator: its log
// offset plus the node-edits that were applied.
type NodeEditBatch struct {
	Offs    uint64
	Changes []AppliedNodeEdit
}

// NodeEditYield receives one logged batch during SyncNodeEdits.
type NodeEditYield func(NodeEditBatch) (bool, error)

// SyncNodeEdits walks the node-edit log from fromOffs onward, ported from
// layer.py's syncNodeEdits generator — the read side of the upstream
// follow protocol.
func (l *Layer) SyncNodeEdits(ctx context.Context, fromOffs uint64, yield NodeEditYield) error {
	return l.backend.View(ctx, func(tx kv.Tx) error {
		return l.edits.Iter(ctx, tx, fromOffs, func(offs uint64, valu interface{}) (bool, error) {
			entry, err := decodeLogEntry(valu)
			if err != nil {
				return false, err
			}
			changes := make([]AppliedNodeEdit, 0, len(entry.Changes))
			for _, wne := range entry.Changes {
				ane, err := fromWireNodeEdit(wne)
				if err != nil {
					return false, err
				}
				changes = append(changes, ane)
			}
			return yield(NodeEditBatch{Offs: offs, Changes: changes})
		})
	})
}

// SyntheticEditYield receives one synthetic full-dump NodeEdit during
// IterLayerNodeEdits.
type SyntheticEditYield func(NodeEdit) (bool, error)

// IterLayerNodeEdits replays every node currently stored as a synthetic
// NODE_ADD followed by PROP_SET/TAG_SET/TAGPROP_SET edits, ported from
// iterLayerNodeEdits: a full bybuid scan grouped by contiguous buid prefix,
// used to seed a fresh peer at offset zero. Rows whose ndef is missing (an
// orphaned prop/tag surviving a crash before its NODE_ADD committed) are
// skipped, matching the source's orphan tolerance.
func (l *Layer) IterLayerNodeEdits(ctx context.Context, yield SyntheticEditYield) error {
	return l.backend.View(ctx, func(tx kv.Tx) error {
		cur := tx.Cursor(dbutils.ByBuid)
		defer cur.Close()

		var curBuid Buid
		var haveBuid bool
		var fn *fullNode

		flush := func() (bool, error) {
			if !haveBuid || fn == nil || !fn.hasNdef {
				return true, nil
			}
			ne := fn.synthesize(curBuid)
			buid := curBuid
			err := l.IterNodeData(ctx, tx, buid, func(name string, valu interface{}) (bool, error) {
				ne.Edits = append(ne.Edits, Edit{Kind: EditNodeDataSet, Payload: NodeDataSetPayload{Name: name, Valu: valu}})
				return true, nil
			})
			if err != nil {
				return false, err
			}
			return yield(ne)
		}

		n := 0
		k, v, err := cur.First()
		for ; k != nil; k, v, err = cur.Next() {
			if err != nil {
				return err
			}
			if len(k) < 33 {
				continue
			}
			if err := cooperativeCheck(ctx, n); err != nil {
				return err
			}
			n++

			var b Buid
			copy(b[:], k[:32])
			if !haveBuid || !bytes.Equal(b[:], curBuid[:]) {
				if more, err := flush(); err != nil || !more {
					return err
				}
				curBuid = b
				haveBuid = true
				fn = newFullNode()
			}

			if err := fn.mergeBuidRow(k, v); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}
		_, err = flush()
		return err
	})
}

// fullNode is IterLayerNodeEdits' working accumulator: unlike the public
// StorNode, it retains each value's stortype.Code so the synthesized
// PROP_SET/TAGPROP_SET edits carry the same stortype the original write
// did (StorNode drops it, since the public lift API has no use for it).
type fullNode struct {
	hasNdef  bool
	form     string
	valu     interface{}
	formType stortype.Code
	props    map[string]propRow
	tags     map[string]interface{}
	tagprops map[[2]string]propRow
}

func newFullNode() *fullNode {
	return &fullNode{props: map[string]propRow{}, tags: map[string]interface{}{}, tagprops: map[[2]string]propRow{}}
}

func (fn *fullNode) mergeBuidRow(k, v []byte) error {
	flag := k[32]
	switch flag {
	case flagNdef:
		var row ndefRow
		if err := mpk.Unmarshal(v, &row); err != nil {
			return err
		}
		fn.hasNdef = true
		fn.form = row.Form
		fn.valu = row.Valu
		fn.formType = row.StorType
	case flagProp:
		var row propRow
		if err := mpk.Unmarshal(v, &row); err != nil {
			return err
		}
		fn.props[string(k[33:])] = row
	case flagTag:
		var valu interface{}
		if err := mpk.Unmarshal(v, &valu); err != nil {
			return err
		}
		fn.tags[string(k[33:])] = valu
	case flagTagProp:
		tag, prop, ok := splitTagProp(string(k[33:]))
		if !ok {
			return nil
		}
		var row propRow
		if err := mpk.Unmarshal(v, &row); err != nil {
			return err
		}
		fn.tagprops[[2]string{tag, prop}] = row
	}
	return nil
}

func (fn *fullNode) synthesize(buid Buid) NodeEdit {
	edits := []Edit{{Kind: EditNodeAdd, Payload: NodeAddPayload{Valu: fn.valu, StorType: fn.formType}}}
	for prop, row := range fn.props {
		edits = append(edits, Edit{Kind: EditPropSet, Payload: PropSetPayload{Prop: prop, Valu: row.Valu, StorType: row.StorType}})
	}
	for tag, valu := range fn.tags {
		edits = append(edits, Edit{Kind: EditTagSet, Payload: TagSetPayload{Tag: tag, Valu: valu}})
	}
	for tp, row := range fn.tagprops {
		edits = append(edits, Edit{Kind: EditTagPropSet, Payload: TagPropSetPayload{Tag: tp[0], Prop: tp[1], Valu: row.Valu, StorType: row.StorType}})
	}
	return NodeEdit{Buid: buid, Form: fn.form, Edits: edits}
}
