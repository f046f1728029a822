package layer

import (
	"context"

	"github.com/ledgerwatch/graphlayer/kv"
)

// replay catches the backend up to the node-edit log if a prior run logged
// edits but crashed before the corresponding index writes committed.
// Ported from the startup check in layer.py's __anit__: "if
// nodeeditlog.last().offs > offsets['nodeedit:applied'], replay the tail".
// Unlike the source (which keeps the log in a separate LMDB environment
// from the main index backend and can therefore observe the two drift
// apart), this module commits a log append in the same transaction as the
// index writes it describes (see DESIGN.md), so in practice this runs and
// finds nothing to do — it is kept because a future deployment may split
// them back out, and because it is a named spec operation.
func (l *Layer) replay(ctx context.Context) error {
	var lastOffs uint64
	var hasLast bool

	err := l.backend.View(ctx, func(tx kv.Tx) error {
		offs, _, ok, err := l.edits.Last(tx)
		if err != nil {
			return err
		}
		lastOffs, hasLast = offs, ok
		return nil
	})
	if err != nil {
		return err
	}
	if !hasLast {
		return nil
	}

	appliedOffs := int64(-1)
	if l.offsets.Has(offsetNodeEditApplied) {
		appliedOffs = l.offsets.Get(offsetNodeEditApplied)
	}

	if int64(lastOffs) <= appliedOffs {
		return nil
	}

	err = l.backend.Update(ctx, func(tx kv.Tx) error {
		return l.edits.Iter(ctx, tx, uint64(appliedOffs+1), func(offs uint64, valu interface{}) (bool, error) {
			entry, err := decodeLogEntry(valu)
			if err != nil {
				return false, err
			}
			for _, wne := range entry.Changes {
				ane, err := fromWireNodeEdit(wne)
				if err != nil {
					return false, err
				}
				for _, e := range ane.Changed {
					if _, err := l.applyEdit(tx, ane.Buid, ane.Form, e); err != nil {
						return false, err
					}
				}
			}
			l.offsets.Set(offsetNodeEditApplied, int64(offs))
			return true, nil
		})
	})
	if err != nil {
		l.tables.Discard()
		return err
	}
	l.tables.Confirm()
	return nil
}
