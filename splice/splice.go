// Package splice implements the Splice Generator (spec.md §4.7): a
// compatibility pipeline that flattens logged node-edits into legacy
// single-event tuples for downstream consumers that predate the node-edit
// log format. Optional — only engaged when a layer runs with fallback
// configuration set. No literal teacher or pack source covers this exact
// flattening step; behavior is grounded purely in spec.md's description.
package splice

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
)

// Kind names one legacy splice event type.
type Kind string

const (
	NodeAdd    Kind = "node:add"
	NodeDel    Kind = "node:del"
	PropSet    Kind = "prop:set"
	PropDel    Kind = "prop:del"
	TagAdd     Kind = "tag:add"
	TagDel     Kind = "tag:del"
	TagPropSet Kind = "tag:prop:set"
	TagPropDel Kind = "tag:prop:del"
)

// Offset is the splice stream's compound position: log offset, index of
// the node-edit within that batch, index of the edit within that
// node-edit — ported verbatim from spec.md's "(log_offs, node_index,
// edit_index)".
type Offset struct {
	LogOffs   uint64
	NodeIndex int
	EditIndex int
}

// Info is one splice's payload: the legacy (ndef, ..., user, time, prov)
// shape, here a plain field struct since Go has no equivalent to a
// keyword-arg event tuple.
type Info struct {
	Form     string
	Buid     layer.Buid
	FormValu interface{}
	Prop     string
	Valu     interface{}
	Oldv     interface{}
	Tag      string
	Meta     layer.Meta
}

// Splice is one flattened legacy event.
type Splice struct {
	Offset Offset
	Kind   Kind
	Info   Info
}

// SpliceYield receives one flattened splice.
type SpliceYield func(Splice) (bool, error)

// formValuLookup re-reads a node's form value when the current edit didn't
// carry one (property/tag-only edits), matching "if form_value is not
// carried within the current record ... it is fetched from bybuid".
type formValuLookup func(tx kv.Tx, buid layer.Buid) (interface{}, error)

// Flatten converts one applied node-edit batch (as produced by
// layer.StorNodeEdits/SyncNodeEdits) into its splice stream. NODEDATA edits
// produce no splice, per spec.md §4.7.
func Flatten(ctx context.Context, tx kv.Tx, logOffs uint64, changes []layer.AppliedNodeEdit, meta layer.Meta, lookupFormValu formValuLookup, yield SpliceYield) error {
	for nodeIdx, ane := range changes {
		formValu, haveForm := formValuFromChanges(ane)
		for editIdx, e := range ane.Changed {
			sp, ok, err := toSplice(tx, ane.Buid, ane.Form, e, meta, formValu, haveForm, lookupFormValu)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			sp.Offset = Offset{LogOffs: logOffs, NodeIndex: nodeIdx, EditIndex: editIdx}
			more, err := yield(sp)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

// formValuFromChanges looks for a NODE_ADD/NODE_DEL in this node-edit's own
// changes so same-batch edits don't need a bybuid re-read.
func formValuFromChanges(ane layer.AppliedNodeEdit) (interface{}, bool) {
	for _, e := range ane.Changed {
		switch p := e.Payload.(type) {
		case layer.NodeAddPayload:
			return p.Valu, true
		case layer.NodeDelPayload:
			return p.Valu, true
		}
	}
	return nil, false
}

func toSplice(tx kv.Tx, buid layer.Buid, form string, e layer.Edit, meta layer.Meta, formValu interface{}, haveForm bool, lookupFormValu formValuLookup) (Splice, bool, error) {
	resolveForm := func() (interface{}, error) {
		if haveForm {
			return formValu, nil
		}
		if lookupFormValu == nil {
			return nil, nil
		}
		return lookupFormValu(tx, buid)
	}

	switch p := e.Payload.(type) {
	case layer.NodeAddPayload:
		return Splice{Kind: NodeAdd, Info: Info{Form: form, Buid: buid, FormValu: p.Valu, Meta: meta}}, true, nil
	case layer.NodeDelPayload:
		return Splice{Kind: NodeDel, Info: Info{Form: form, Buid: buid, FormValu: p.Valu, Meta: meta}}, true, nil
	case layer.PropSetPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: PropSet, Info: Info{Form: form, Buid: buid, FormValu: fv, Prop: p.Prop, Valu: p.Valu, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.PropDelPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: PropDel, Info: Info{Form: form, Buid: buid, FormValu: fv, Prop: p.Prop, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.TagSetPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: TagAdd, Info: Info{Form: form, Buid: buid, FormValu: fv, Tag: p.Tag, Valu: p.Valu, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.TagDelPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: TagDel, Info: Info{Form: form, Buid: buid, FormValu: fv, Tag: p.Tag, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.TagPropSetPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: TagPropSet, Info: Info{Form: form, Buid: buid, FormValu: fv, Tag: p.Tag, Prop: p.Prop, Valu: p.Valu, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.TagPropDelPayload:
		fv, err := resolveForm()
		if err != nil {
			return Splice{}, false, err
		}
		return Splice{Kind: TagPropDel, Info: Info{Form: form, Buid: buid, FormValu: fv, Tag: p.Tag, Prop: p.Prop, Oldv: p.Oldv, Meta: meta}}, true, nil
	case layer.NodeDataSetPayload, layer.NodeDataDelPayload:
		return Splice{}, false, nil // NODEDATA edits produce no splice
	default:
		return Splice{}, false, fmt.Errorf("splice: unknown edit payload %T", e.Payload)
	}
}
