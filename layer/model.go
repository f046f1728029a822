package layer

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/pborman/uuid"
)

var (
	modelIdenKey = []byte("iden")
	modelVersKey = []byte("model:version")
)

// ModelVers is the (major, minor, patch) triple stored under layer info,
// per spec.md §6. The core never changes it except via SetModelVers.
type ModelVers [3]int

func encodeModelVers(v ModelVers) []byte {
	return []byte(fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]))
}

func decodeModelVers(b []byte) (ModelVers, error) {
	var v ModelVers
	if _, err := fmt.Sscanf(string(b), "%d.%d.%d", &v[0], &v[1], &v[2]); err != nil {
		return ModelVers{}, err
	}
	return v, nil
}

// GetIden returns the layer's durable identifier, generating and storing a
// fresh one on first use. Ported from layer.py's self.iden, seeded from
// `pborman/uuid` the way the teacher seeds other identifiers.
func (l *Layer) GetIden(ctx context.Context) (string, error) {
	var iden string
	err := l.backend.Update(ctx, func(tx kv.Tx) error {
		v, err := tx.Get(dbutils.Model, modelIdenKey)
		if err != nil {
			return err
		}
		if v != nil {
			iden = string(v)
			return nil
		}
		iden = uuid.NewRandom().String()
		return tx.Put(dbutils.Model, modelIdenKey, []byte(iden))
	})
	return iden, err
}

// GetModelVers returns the current model version, or the zero version if
// none has been set yet.
func (l *Layer) GetModelVers(tx kv.Tx) (ModelVers, error) {
	v, err := tx.Get(dbutils.Model, modelVersKey)
	if err != nil || v == nil {
		return ModelVers{}, err
	}
	return decodeModelVers(v)
}

// SetModelVers records a new model version. The only writer allowed to call
// this is whatever applies model migrations; the edit engine never touches
// it.
func (l *Layer) SetModelVers(tx kv.Tx, v ModelVers) error {
	return tx.Put(dbutils.Model, modelVersKey, encodeModelVers(v))
}

// LayerInfo is pack()'s return shape: a snapshot of layer metadata for a
// collaborator to introspect.
type LayerInfo struct {
	Iden         string
	ModelVers    ModelVers
	Fallback     bool
	NodeEditOffs int64
}

// Pack returns a metadata snapshot, ported from layer.py's pack().
func (l *Layer) Pack(ctx context.Context) (*LayerInfo, error) {
	iden, err := l.GetIden(ctx)
	if err != nil {
		return nil, err
	}
	info := &LayerInfo{Iden: iden, Fallback: l.fallback, NodeEditOffs: l.GetNodeEditOffset()}
	err = l.backend.View(ctx, func(tx kv.Tx) error {
		vers, err := l.GetModelVers(tx)
		if err != nil {
			return err
		}
		info.ModelVers = vers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetNodeEditOffset returns the log offset of the most recently applied
// node-edit batch, or -1 if none has ever been applied.
func (l *Layer) GetNodeEditOffset() int64 {
	if !l.offsets.Has(offsetNodeEditApplied) {
		return -1
	}
	return l.offsets.Get(offsetNodeEditApplied)
}
