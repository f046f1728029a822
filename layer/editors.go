package layer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/stortype"
	"github.com/ledgerwatch/graphlayer/window"
)

// applyEdit dispatches one Edit to its editor, ported from layer.py's
// self.editors[edit[0]] table.
func (l *Layer) applyEdit(tx kv.Tx, buid Buid, form string, e Edit) ([]Edit, error) {
	switch e.Kind {
	case EditNodeAdd:
		return l.editNodeAdd(tx, buid, form, e.Payload.(NodeAddPayload))
	case EditNodeDel:
		return l.editNodeDel(tx, buid, form, e.Payload.(NodeDelPayload))
	case EditPropSet:
		return l.editPropSet(tx, buid, form, e.Payload.(PropSetPayload))
	case EditPropDel:
		return l.editPropDel(tx, buid, form, e.Payload.(PropDelPayload))
	case EditTagSet:
		return l.editTagSet(tx, buid, form, e.Payload.(TagSetPayload))
	case EditTagDel:
		return l.editTagDel(tx, buid, form, e.Payload.(TagDelPayload))
	case EditTagPropSet:
		return l.editTagPropSet(tx, buid, form, e.Payload.(TagPropSetPayload))
	case EditTagPropDel:
		return l.editTagPropDel(tx, buid, form, e.Payload.(TagPropDelPayload))
	case EditNodeDataSet:
		return l.editNodeDataSet(tx, buid, e.Payload.(NodeDataSetPayload))
	case EditNodeDataDel:
		return l.editNodeDataDel(tx, buid, e.Payload.(NodeDataDelPayload))
	default:
		return nil, errNodeEdit(e.Kind, fmt.Errorf("unknown edit kind"))
	}
}

// editNodeAdd is _editNodeAdd: write the ndef row, every index for valu,
// bump the form count, and synthesize+apply '.created'.
func (l *Layer) editNodeAdd(tx kv.Tx, buid Buid, form string, p NodeAddPayload) ([]Edit, error) {
	key := ndefKey(buid)
	existing, err := tx.Get(dbutils.ByBuid, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	byts, err := mpk.Marshal(ndefRow{Form: form, Valu: p.Valu, StorType: p.StorType})
	if err != nil {
		return nil, err
	}
	if err := tx.Put(dbutils.ByBuid, key, byts); err != nil {
		return nil, err
	}

	formAbrv, err := l.tables.PropAbrv(tx, form, "")
	if err != nil {
		return nil, err
	}

	if err := l.putPropIndexes(tx, buid, formAbrv, p.StorType, p.Valu, nil); err != nil {
		return nil, err
	}

	l.counts.Inc("form:"+form, 1)

	created := Edit{Kind: EditPropSet, Payload: PropSetPayload{Prop: ".created", Valu: time.Now().UnixMilli(), Oldv: nil, StorType: stortype.TIME}}
	createdApplied, err := l.editPropSet(tx, buid, form, created.Payload.(PropSetPayload))
	if err != nil {
		return nil, err
	}

	out := []Edit{{Kind: EditNodeAdd, Payload: p}}
	out = append(out, createdApplied...)
	return out, nil
}

// putPropIndexes writes byarray+whole-array-byprop rows for an array type,
// or a single byprop row otherwise, for both the form/prop abbreviation
// and (if non-nil) the universal-prop alias abbreviation.
func (l *Layer) putPropIndexes(tx kv.Tx, buid Buid, abrv []byte, code stortype.Code, valu interface{}, univAbrv []byte) error {
	if code.IsArray() {
		elemIndxes, err := getStorIndx(code, valu)
		if err != nil {
			return err
		}
		for _, indx := range elemIndxes {
			if err := tx.Put(dbutils.ByArray, append(append([]byte{}, abrv...), indx...), buid[:]); err != nil {
				return err
			}
			if univAbrv != nil {
				if err := tx.Put(dbutils.ByArray, append(append([]byte{}, univAbrv...), indx...), buid[:]); err != nil {
					return err
				}
			}
		}
		wholeIndxes, err := wholeArrayIndx(valu)
		if err != nil {
			return err
		}
		for _, indx := range wholeIndxes {
			if err := tx.Put(dbutils.ByProp, append(append([]byte{}, abrv...), indx...), buid[:]); err != nil {
				return err
			}
			if univAbrv != nil {
				if err := tx.Put(dbutils.ByProp, append(append([]byte{}, univAbrv...), indx...), buid[:]); err != nil {
					return err
				}
			}
		}
		return nil
	}

	indxes, err := getStorIndx(code, valu)
	if err != nil {
		return err
	}
	for _, indx := range indxes {
		if err := tx.Put(dbutils.ByProp, append(append([]byte{}, abrv...), indx...), buid[:]); err != nil {
			return err
		}
		if univAbrv != nil {
			if err := tx.Put(dbutils.ByProp, append(append([]byte{}, univAbrv...), indx...), buid[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// delPropIndexes is putPropIndexes' mirror image for removal. Array
// PROP_DEL always deletes (never re-puts) old rows — the source's flip on
// this exact path (spec.md §9) is intentionally not reproduced.
func (l *Layer) delPropIndexes(tx kv.Tx, buid Buid, abrv []byte, code stortype.Code, valu interface{}, univAbrv []byte) error {
	if code.IsArray() {
		elemIndxes, err := getStorIndx(code, valu)
		if err != nil {
			return err
		}
		for _, indx := range elemIndxes {
			key := append(append([]byte{}, abrv...), indx...)
			if err := tx.DeleteExact(dbutils.ByArray, key, buid[:]); err != nil {
				return err
			}
			if univAbrv != nil {
				ukey := append(append([]byte{}, univAbrv...), indx...)
				if err := tx.DeleteExact(dbutils.ByArray, ukey, buid[:]); err != nil {
					return err
				}
			}
		}
		wholeIndxes, err := wholeArrayIndx(valu)
		if err != nil {
			return err
		}
		for _, indx := range wholeIndxes {
			key := append(append([]byte{}, abrv...), indx...)
			if err := tx.DeleteExact(dbutils.ByProp, key, buid[:]); err != nil {
				return err
			}
			if univAbrv != nil {
				ukey := append(append([]byte{}, univAbrv...), indx...)
				if err := tx.DeleteExact(dbutils.ByProp, ukey, buid[:]); err != nil {
					return err
				}
			}
		}
		return nil
	}

	indxes, err := getStorIndx(code, valu)
	if err != nil {
		return err
	}
	for _, indx := range indxes {
		key := append(append([]byte{}, abrv...), indx...)
		if err := tx.DeleteExact(dbutils.ByProp, key, buid[:]); err != nil {
			return err
		}
		if univAbrv != nil {
			ukey := append(append([]byte{}, univAbrv...), indx...)
			if err := tx.DeleteExact(dbutils.ByProp, ukey, buid[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Layer) editNodeDel(tx kv.Tx, buid Buid, form string, p NodeDelPayload) ([]Edit, error) {
	key := ndefKey(buid)
	byts, err := tx.Pop(dbutils.ByBuid, key)
	if err != nil || byts == nil {
		return nil, err
	}

	var row ndefRow
	if err := mpk.Unmarshal(byts, &row); err != nil {
		return nil, err
	}

	formAbrv, err := l.tables.PropAbrv(tx, row.Form, "")
	if err != nil {
		return nil, err
	}
	if err := l.delPropIndexes(tx, buid, formAbrv, row.StorType, row.Valu, nil); err != nil {
		return nil, err
	}

	l.counts.Inc("form:"+row.Form, -1)

	if err := l.wipeNodeData(tx, buid); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditNodeDel, Payload: NodeDelPayload{Valu: row.Valu, StorType: row.StorType}}}, nil
}

func isUnivProp(prop string) bool { return strings.HasPrefix(prop, ".") }

func (l *Layer) editPropSet(tx kv.Tx, buid Buid, form string, p PropSetPayload) ([]Edit, error) {
	bkey := propKey(buid, p.Prop)

	abrv, err := l.tables.PropAbrv(tx, form, p.Prop)
	if err != nil {
		return nil, err
	}
	var univAbrv []byte
	if isUnivProp(p.Prop) {
		univAbrv, err = l.tables.PropAbrv(tx, "", p.Prop)
		if err != nil {
			return nil, err
		}
	}

	newb, err := mpk.Marshal(propRow{Valu: p.Valu, StorType: p.StorType})
	if err != nil {
		return nil, err
	}
	oldb, err := tx.Replace(dbutils.ByBuid, bkey, newb)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(newb, oldb) {
		return []Edit{}, nil
	}

	var oldv interface{}
	if oldb != nil {
		var oldRow propRow
		if err := mpk.Unmarshal(oldb, &oldRow); err != nil {
			return nil, err
		}
		oldv = oldRow.Valu
		if err := l.delPropIndexes(tx, buid, abrv, oldRow.StorType, oldRow.Valu, univAbrv); err != nil {
			return nil, err
		}
	}

	if err := l.putPropIndexes(tx, buid, abrv, p.StorType, p.Valu, univAbrv); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditPropSet, Payload: PropSetPayload{Prop: p.Prop, Valu: p.Valu, Oldv: oldv, StorType: p.StorType}}}, nil
}

func (l *Layer) editPropDel(tx kv.Tx, buid Buid, form string, p PropDelPayload) ([]Edit, error) {
	bkey := propKey(buid, p.Prop)

	abrv, err := l.tables.PropAbrv(tx, form, p.Prop)
	if err != nil {
		return nil, err
	}
	var univAbrv []byte
	if isUnivProp(p.Prop) {
		univAbrv, err = l.tables.PropAbrv(tx, "", p.Prop)
		if err != nil {
			return nil, err
		}
	}

	byts, err := tx.Pop(dbutils.ByBuid, bkey)
	if err != nil || byts == nil {
		return nil, err
	}

	var row propRow
	if err := mpk.Unmarshal(byts, &row); err != nil {
		return nil, err
	}

	if err := l.delPropIndexes(tx, buid, abrv, row.StorType, row.Valu, univAbrv); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditPropDel, Payload: PropDelPayload{Prop: p.Prop, Oldv: row.Valu, StorType: row.StorType}}}, nil
}

func (l *Layer) editTagSet(tx kv.Tx, buid Buid, form string, p TagSetPayload) ([]Edit, error) {
	bkey := tagKey(buid, p.Tag)

	tagAbrv, err := l.tables.TagAbrv(tx, p.Tag)
	if err != nil {
		return nil, err
	}
	formAbrv, err := l.tables.PropAbrv(tx, form, "")
	if err != nil {
		return nil, err
	}

	newb, err := mpk.Marshal(p.Valu)
	if err != nil {
		return nil, err
	}
	oldb, err := tx.Replace(dbutils.ByBuid, bkey, newb)
	if err != nil {
		return nil, err
	}

	var oldv interface{}
	if oldb != nil {
		if err := mpk.Unmarshal(oldb, &oldv); err != nil {
			return nil, err
		}
		if bytes.Equal(oldb, newb) {
			return nil, nil
		}
	}

	membershipKey := append(append([]byte{}, tagAbrv...), formAbrv...)
	if err := tx.Put(dbutils.ByTag, membershipKey, buid[:]); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditTagSet, Payload: TagSetPayload{Tag: p.Tag, Valu: p.Valu, Oldv: oldv}}}, nil
}

func (l *Layer) editTagDel(tx kv.Tx, buid Buid, form string, p TagDelPayload) ([]Edit, error) {
	bkey := tagKey(buid, p.Tag)

	tagAbrv, err := l.tables.TagAbrv(tx, p.Tag)
	if err != nil {
		return nil, err
	}
	formAbrv, err := l.tables.PropAbrv(tx, form, "")
	if err != nil {
		return nil, err
	}

	oldb, err := tx.Pop(dbutils.ByBuid, bkey)
	if err != nil || oldb == nil {
		return nil, err
	}

	membershipKey := append(append([]byte{}, tagAbrv...), formAbrv...)
	if err := tx.DeleteExact(dbutils.ByTag, membershipKey, buid[:]); err != nil {
		return nil, err
	}

	var oldv interface{}
	if err := mpk.Unmarshal(oldb, &oldv); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditTagDel, Payload: TagDelPayload{Tag: p.Tag, Oldv: oldv}}}, nil
}

func (l *Layer) editTagPropSet(tx kv.Tx, buid Buid, form string, p TagPropSetPayload) ([]Edit, error) {
	bkey := tagPropKey(buid, p.Tag, p.Prop)

	pAbrv, err := l.tables.TagPropAbrv(tx, "", "", p.Prop)
	if err != nil {
		return nil, err
	}
	tpAbrv, err := l.tables.TagPropAbrv(tx, "", p.Tag, p.Prop)
	if err != nil {
		return nil, err
	}
	ftpAbrv, err := l.tables.TagPropAbrv(tx, form, p.Tag, p.Prop)
	if err != nil {
		return nil, err
	}

	newb, err := mpk.Marshal(propRow{Valu: p.Valu, StorType: p.StorType})
	if err != nil {
		return nil, err
	}
	oldb, err := tx.Replace(dbutils.ByBuid, bkey, newb)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(newb, oldb) {
		return []Edit{}, nil
	}

	var oldv interface{}
	if oldb != nil {
		var oldRow propRow
		if err := mpk.Unmarshal(oldb, &oldRow); err != nil {
			return nil, err
		}
		oldv = oldRow.Valu
		oldIndxes, err := getStorIndx(oldRow.StorType, oldRow.Valu)
		if err != nil {
			return nil, err
		}
		for _, indx := range oldIndxes {
			for _, a := range [][]byte{pAbrv, tpAbrv, ftpAbrv} {
				if err := tx.DeleteExact(dbutils.ByTagProp, append(append([]byte{}, a...), indx...), buid[:]); err != nil {
					return nil, err
				}
			}
		}
	}

	indxes, err := getStorIndx(p.StorType, p.Valu)
	if err != nil {
		return nil, err
	}
	for _, indx := range indxes {
		for _, a := range [][]byte{pAbrv, tpAbrv, ftpAbrv} {
			if err := tx.Put(dbutils.ByTagProp, append(append([]byte{}, a...), indx...), buid[:]); err != nil {
				return nil, err
			}
		}
	}

	return []Edit{{Kind: EditTagPropSet, Payload: TagPropSetPayload{Tag: p.Tag, Prop: p.Prop, Valu: p.Valu, Oldv: oldv, StorType: p.StorType}}}, nil
}

func (l *Layer) editTagPropDel(tx kv.Tx, buid Buid, form string, p TagPropDelPayload) ([]Edit, error) {
	bkey := tagPropKey(buid, p.Tag, p.Prop)

	pAbrv, err := l.tables.TagPropAbrv(tx, "", "", p.Prop)
	if err != nil {
		return nil, err
	}
	tpAbrv, err := l.tables.TagPropAbrv(tx, "", p.Tag, p.Prop)
	if err != nil {
		return nil, err
	}
	ftpAbrv, err := l.tables.TagPropAbrv(tx, form, p.Tag, p.Prop)
	if err != nil {
		return nil, err
	}

	oldb, err := tx.Pop(dbutils.ByBuid, bkey)
	if err != nil || oldb == nil {
		return nil, err
	}

	var oldRow propRow
	if err := mpk.Unmarshal(oldb, &oldRow); err != nil {
		return nil, err
	}

	indxes, err := getStorIndx(oldRow.StorType, oldRow.Valu)
	if err != nil {
		return nil, err
	}
	for _, indx := range indxes {
		for _, a := range [][]byte{pAbrv, tpAbrv, ftpAbrv} {
			if err := tx.DeleteExact(dbutils.ByTagProp, append(append([]byte{}, a...), indx...), buid[:]); err != nil {
				return nil, err
			}
		}
	}

	return []Edit{{Kind: EditTagPropDel, Payload: TagPropDelPayload{Tag: p.Tag, Prop: p.Prop, Oldv: oldRow.Valu, StorType: oldRow.StorType}}}, nil
}

func (l *Layer) editNodeDataSet(tx kv.Tx, buid Buid, p NodeDataSetPayload) ([]Edit, error) {
	abrv, err := l.tables.PropAbrv(tx, p.Name, "")
	if err != nil {
		return nil, err
	}
	key := append(append([]byte{}, buid[:]...), abrv...)

	newb, err := mpk.Marshal(p.Valu)
	if err != nil {
		return nil, err
	}
	oldb, err := tx.Replace(dbutils.NodeData, key, newb)
	if err != nil {
		return nil, err
	}

	var oldv interface{}
	if oldb != nil {
		if err := mpk.Unmarshal(oldb, &oldv); err != nil {
			return nil, err
		}
		if bytes.Equal(oldb, newb) {
			return nil, nil
		}
	}

	return []Edit{{Kind: EditNodeDataSet, Payload: NodeDataSetPayload{Name: p.Name, Valu: p.Valu, Oldv: oldv}}}, nil
}

func (l *Layer) editNodeDataDel(tx kv.Tx, buid Buid, p NodeDataDelPayload) ([]Edit, error) {
	abrv, err := l.tables.PropAbrv(tx, p.Name, "")
	if err != nil {
		return nil, err
	}
	key := append(append([]byte{}, buid[:]...), abrv...)

	oldb, err := tx.Pop(dbutils.NodeData, key)
	if err != nil || oldb == nil {
		return nil, err
	}

	var oldv interface{}
	if err := mpk.Unmarshal(oldb, &oldv); err != nil {
		return nil, err
	}

	return []Edit{{Kind: EditNodeDataDel, Payload: NodeDataDelPayload{Name: p.Name, Valu: oldv}}}, nil
}

func (l *Layer) wipeNodeData(tx kv.Tx, buid Buid) error {
	cur := tx.Cursor(dbutils.NodeData)
	defer cur.Close()

	var toDel [][]byte
	k, _, err := cur.Seek(buid[:])
	for ; k != nil; k, _, err = cur.Next() {
		if err != nil {
			return err
		}
		if len(k) < 32 || !bytes.Equal(k[:32], buid[:]) {
			break
		}
		toDel = append(toDel, append([]byte{}, k...))
	}
	for _, k := range toDel {
		if err := tx.Delete(dbutils.NodeData, k); err != nil {
			return err
		}
	}
	return nil
}

// Meta carries free-form caller metadata alongside a node-edit batch (user,
// time, provenance), stored verbatim in the log entry.
type Meta map[string]interface{}

// storNodeEdit applies every edit for one node in order and collects the
// applied (possibly synthesized) edits, mirroring layer.py's
// _storNodeEdit.
func (l *Layer) storNodeEdit(tx kv.Tx, ne NodeEdit) ([]Edit, error) {
	var changed []Edit
	for _, e := range ne.Edits {
		applied, err := l.applyEdit(tx, ne.Buid, ne.Form, e)
		if err != nil {
			return nil, err
		}
		changed = append(changed, applied...)
	}
	return changed, nil
}

// AppliedNodeEdit is one node's edits as recorded in the log: the
// caller-supplied buid/form plus the editors' actual applied output.
type AppliedNodeEdit struct {
	Buid    Buid
	Form    string
	Changed []Edit
}

type wireLogEntry struct {
	Changes []wireNodeEdit
	Meta    Meta
}

func toWireLogEntry(changes []AppliedNodeEdit, meta Meta) (wireLogEntry, error) {
	w := wireLogEntry{Meta: meta}
	for _, ane := range changes {
		wne, err := toWireNodeEdit(ane)
		if err != nil {
			return wireLogEntry{}, err
		}
		w.Changes = append(w.Changes, wne)
	}
	return w, nil
}

func decodeLogEntry(valu interface{}) (wireLogEntry, error) {
	// seqlog decodes generically into interface{}; round-trip it through
	// msgpack once more to land on the concrete wireLogEntry shape.
	b, err := mpk.Marshal(valu)
	if err != nil {
		return wireLogEntry{}, err
	}
	var entry wireLogEntry
	if err := mpk.Unmarshal(b, &entry); err != nil {
		return wireLogEntry{}, err
	}
	return entry, nil
}

// StorNodeEdits runs a batch of node-edits, logs the result, fans it out
// to every live window, and returns the updated storage nodes. The applied
// edits are not returned with the nodes; they reach callers only through
// the log and the live windows. Ported from layer.py's storNodeEdits.
func (l *Layer) StorNodeEdits(ctx context.Context, nodeedits []NodeEdit, meta Meta) ([]*StorNode, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var changes []AppliedNodeEdit
	var result []*StorNode
	var offs uint64

	err := l.backend.Update(ctx, func(tx kv.Tx) error {
		changes = nil
		for _, ne := range nodeedits {
			changed, err := l.storNodeEdit(tx, ne)
			if err != nil {
				return err
			}
			changes = append(changes, AppliedNodeEdit{Buid: ne.Buid, Form: ne.Form, Changed: changed})
		}

		wire, err := toWireLogEntry(changes, meta)
		if err != nil {
			return err
		}
		offs, err = l.edits.Add(tx, wire)
		if err != nil {
			return err
		}

		l.offsets.Set(offsetNodeEditApplied, int64(offs))
		if err := l.offsets.Flush(tx); err != nil {
			return err
		}
		if err := l.counts.Flush(tx); err != nil {
			return err
		}

		l.windows.Push(window.Batch{Offs: offs, Changes: changes})

		result = make([]*StorNode, 0, len(nodeedits))
		for _, ne := range nodeedits {
			sn, err := l.GetStorNode(ctx, tx, ne.Buid)
			if err != nil {
				return err
			}
			result = append(result, sn)
		}
		return nil
	})
	if err != nil {
		l.tables.Discard()
		return nil, err
	}
	l.edits.Confirm(offs)
	l.tables.Confirm()
	if l.metrics != nil {
		l.metrics.EditsApplied.Inc()
		l.metrics.NodeEditOffset.Set(float64(offs))
	}
	return result, nil
}

// StorNodeEditsNoLift is StorNodeEdits without reassembling and returning
// the updated nodes — the upstream syncer's hot path.
func (l *Layer) StorNodeEditsNoLift(ctx context.Context, nodeedits []NodeEdit, meta Meta) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var offs uint64
	err := l.backend.Update(ctx, func(tx kv.Tx) error {
		var changes []AppliedNodeEdit
		for _, ne := range nodeedits {
			changed, err := l.storNodeEdit(tx, ne)
			if err != nil {
				return err
			}
			changes = append(changes, AppliedNodeEdit{Buid: ne.Buid, Form: ne.Form, Changed: changed})
		}

		wire, err := toWireLogEntry(changes, meta)
		if err != nil {
			return err
		}
		offs, err = l.edits.Add(tx, wire)
		if err != nil {
			return err
		}

		l.offsets.Set(offsetNodeEditApplied, int64(offs))
		if err := l.offsets.Flush(tx); err != nil {
			return err
		}
		if err := l.counts.Flush(tx); err != nil {
			return err
		}

		l.windows.Push(window.Batch{Offs: offs, Changes: changes})
		return nil
	})
	if err != nil {
		l.tables.Discard()
		return err
	}
	l.edits.Confirm(offs)
	l.tables.Confirm()
	if l.metrics != nil {
		l.metrics.EditsApplied.Inc()
		l.metrics.NodeEditOffset.Set(float64(offs))
	}
	return nil
}
