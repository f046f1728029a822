// Package layer implements the core graph storage layer: the edit engine
// (component E in spec.md §4.2) wired to the KV backend, the abbreviator,
// the hot counter, and the sequence log. Ported from
// original_source/synapse/lib/layer.py's editor methods
// (_editNodeAdd .. _editNodeDataDel) and storNodeEdits/getStorNode.
package layer

import (
	"fmt"

	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/stortype"
)

// EditKind identifies one of the ten edit operations.
type EditKind int

const (
	EditNodeAdd EditKind = iota
	EditNodeDel
	EditPropSet
	EditPropDel
	EditTagSet
	EditTagDel
	EditTagPropSet
	EditTagPropDel
	EditNodeDataSet
	EditNodeDataDel
)

// row-kind flag bytes within bybuid, ported verbatim from layer.py's
// buid + b'\x00'/b'\x01'/b'\x02'/b'\x03' convention.
const (
	flagNdef    byte = 0x00
	flagProp    byte = 0x01
	flagTag     byte = 0x02
	flagTagProp byte = 0x03
)

// Buid is the opaque 32-byte node identifier.
type Buid = stortype.Buid

// Edit is one positional (kind, payload) instruction, matching spec.md
// §4.2's edit tuple.
type Edit struct {
	Kind    EditKind
	Payload interface{}
}

// NodeEdit groups every edit for one node within a single storNodeEdits
// batch.
type NodeEdit struct {
	Buid  Buid
	Form  string
	Edits []Edit
}

// Payload shapes, one per EditKind. Fields mirror the positional tuples in
// spec.md's edit engine table exactly (value/old-value/stortype ordering).
type NodeAddPayload struct {
	Valu     interface{}
	StorType stortype.Code
}

type NodeDelPayload struct {
	Valu     interface{}
	StorType stortype.Code
}

type PropSetPayload struct {
	Prop     string
	Valu     interface{}
	Oldv     interface{}
	StorType stortype.Code
}

type PropDelPayload struct {
	Prop     string
	Oldv     interface{}
	StorType stortype.Code
}

type TagSetPayload struct {
	Tag  string
	Valu interface{}
	Oldv interface{}
}

type TagDelPayload struct {
	Tag  string
	Oldv interface{}
}

type TagPropSetPayload struct {
	Tag      string
	Prop     string
	Valu     interface{}
	Oldv     interface{}
	StorType stortype.Code
}

type TagPropDelPayload struct {
	Tag      string
	Prop     string
	Oldv     interface{}
	StorType stortype.Code
}

type NodeDataSetPayload struct {
	Name string
	Valu interface{}
	Oldv interface{}
}

type NodeDataDelPayload struct {
	Name string
	Valu interface{}
}

// wireEdit is Edit's on-the-wire shape for the node-edit log: Payload is
// pre-marshaled so decoding can dispatch on Kind before re-unmarshaling
// into the right concrete payload struct (msgpack carries no Go type
// tags, so a bare interface{} field cannot round-trip polymorphically).
type wireEdit struct {
	Kind    EditKind
	Payload []byte
}

type wireNodeEdit struct {
	Buid    []byte
	Form    string
	Changed []wireEdit
}

func toWireEdit(e Edit) (wireEdit, error) {
	b, err := mpk.Marshal(e.Payload)
	if err != nil {
		return wireEdit{}, err
	}
	return wireEdit{Kind: e.Kind, Payload: b}, nil
}

func fromWireEdit(w wireEdit) (Edit, error) {
	var payload interface{}
	switch w.Kind {
	case EditNodeAdd:
		var p NodeAddPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditNodeDel:
		var p NodeDelPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditPropSet:
		var p PropSetPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditPropDel:
		var p PropDelPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditTagSet:
		var p TagSetPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditTagDel:
		var p TagDelPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditTagPropSet:
		var p TagPropSetPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditTagPropDel:
		var p TagPropDelPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditNodeDataSet:
		var p NodeDataSetPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	case EditNodeDataDel:
		var p NodeDataDelPayload
		if err := mpk.Unmarshal(w.Payload, &p); err != nil {
			return Edit{}, err
		}
		payload = p
	default:
		return Edit{}, fmt.Errorf("layer: unknown wire edit kind %d", w.Kind)
	}
	return Edit{Kind: w.Kind, Payload: payload}, nil
}

func toWireNodeEdit(ane AppliedNodeEdit) (wireNodeEdit, error) {
	w := wireNodeEdit{Buid: append([]byte{}, ane.Buid[:]...), Form: ane.Form}
	for _, e := range ane.Changed {
		we, err := toWireEdit(e)
		if err != nil {
			return wireNodeEdit{}, err
		}
		w.Changed = append(w.Changed, we)
	}
	return w, nil
}

func fromWireNodeEdit(w wireNodeEdit) (AppliedNodeEdit, error) {
	var ane AppliedNodeEdit
	copy(ane.Buid[:], w.Buid)
	ane.Form = w.Form
	for _, we := range w.Changed {
		e, err := fromWireEdit(we)
		if err != nil {
			return AppliedNodeEdit{}, err
		}
		ane.Changed = append(ane.Changed, e)
	}
	return ane, nil
}

// ndefRow is the msgpack shape of a buid+0x00 row.
type ndefRow struct {
	Form     string
	Valu     interface{}
	StorType stortype.Code
}

// propRow is the msgpack shape of a buid+0x01+prop row, and also the
// buid+0x03+tag:prop tagprop row (same two fields).
type propRow struct {
	Valu     interface{}
	StorType stortype.Code
}
