package layer

import (
	"context"

	"github.com/ledgerwatch/graphlayer/kv"
)

// RowYield receives one (buid, value) pair during a row iteration.
type RowYield func(buid Buid, valu interface{}) (bool, error)

// IterFormRows walks every node of form in index order (sorted by the
// encoded form value), ported from
// iterFormRows: a bare prefix scan over byprop keyed by the form's
// propless abbreviation.
func (l *Layer) IterFormRows(ctx context.Context, tx kv.Tx, form string, yield RowYield) error {
	ib, err := newFormIndxBy(l, tx, form)
	if err != nil {
		return err
	}
	return ib.ScanByPref(ctx, nil, func(k []byte, b Buid) (bool, error) {
		valu, err := l.GetNodeValu(tx, b, "")
		if err != nil {
			return false, err
		}
		return yield(b, valu)
	})
}

// IterPropRows walks every node carrying prop on form, ported from
// iterPropRows.
func (l *Layer) IterPropRows(ctx context.Context, tx kv.Tx, form, prop string, yield RowYield) error {
	ib, err := newPropIndxBy(l, tx, form, prop)
	if err != nil {
		return err
	}
	return ib.ScanByPref(ctx, nil, func(k []byte, b Buid) (bool, error) {
		valu, err := l.GetNodeValu(tx, b, prop)
		if err != nil {
			return false, err
		}
		return yield(b, valu)
	})
}

// IterUnivRows walks every node carrying the universal prop (any form),
// ported from iterUnivRows: scans byprop under the form-less abbreviation.
func (l *Layer) IterUnivRows(ctx context.Context, tx kv.Tx, prop string, yield RowYield) error {
	ib, err := newPropIndxBy(l, tx, "", prop)
	if err != nil {
		return err
	}
	return ib.ScanByPref(ctx, nil, func(k []byte, b Buid) (bool, error) {
		valu, err := l.GetNodeValu(tx, b, prop)
		if err != nil {
			return false, err
		}
		return yield(b, valu)
	})
}
