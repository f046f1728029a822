package splice

import (
	"context"

	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/mpk"
	"github.com/ledgerwatch/graphlayer/seqlog"
	"github.com/ledgerwatch/graphlayer/window"
)

// Writer durably appends every node-edit batch's flattened splices to a
// dedicated sequence log, fed by a live-window subscription rather than a
// direct call from layer.StorNodeEdits — the layer package must not import
// splice (it would import layer back for AppliedNodeEdit), so the fallback
// pipeline subscribes to the layer's live-window fanout through
// window.Acquire, and the log module this writes into therefore lags by one
// fanout hop instead of sharing StorNodeEdits' own commit. Acceptable for a
// legacy compatibility stream; see DESIGN.md.
type Writer struct {
	backend kv.KV
	log     *seqlog.Seqlog
	lookup  formValuLookup
}

// NewWriter builds a splice writer over an opened splices log.
func NewWriter(backend kv.KV, log *seqlog.Seqlog, lookup formValuLookup) *Writer {
	return &Writer{backend: backend, log: log, lookup: lookup}
}

// Run subscribes to fanout and flattens+appends every batch until ctx is
// canceled.
func (w *Writer) Run(ctx context.Context, fanout *window.Fanout) error {
	q := fanout.Acquire(ctx)
	defer q.Close()

	for {
		select {
		case batch, ok := <-q.Recv():
			if !ok {
				return nil
			}
			changes, ok := batch.Changes.([]layer.AppliedNodeEdit)
			if !ok {
				continue
			}
			if err := w.append(ctx, batch.Offs, changes); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Writer) append(ctx context.Context, logOffs uint64, changes []layer.AppliedNodeEdit) error {
	var lastOffs uint64
	var wrote bool
	err := w.backend.Update(ctx, func(tx kv.Tx) error {
		return Flatten(ctx, tx, logOffs, changes, nil, w.lookup, func(sp Splice) (bool, error) {
			offs, err := w.log.Add(tx, sp)
			lastOffs, wrote = offs, true
			return true, err
		})
	})
	if err != nil {
		return err
	}
	if wrote {
		w.log.Confirm(lastOffs)
	}
	return nil
}

// Reader exposes splices(from_offs, size) to collaborators.
type Reader struct {
	backend kv.KV
	log     *seqlog.Seqlog
}

// NewReader wraps an opened splices log for reading.
func NewReader(backend kv.KV, log *seqlog.Seqlog) *Reader {
	return &Reader{backend: backend, log: log}
}

// Slice returns up to size splices starting at offs, ported from the
// `splices(from_offs, size)` entry in spec.md §6.
func (r *Reader) Slice(ctx context.Context, offs uint64, size int) ([]Splice, error) {
	var out []Splice
	err := r.backend.View(ctx, func(tx kv.Tx) error {
		_, vals, err := r.log.Slice(ctx, tx, offs, size)
		if err != nil {
			return err
		}
		out = make([]Splice, 0, len(vals))
		for _, v := range vals {
			sp, err := decodeSplice(v)
			if err != nil {
				return err
			}
			out = append(out, sp)
		}
		return nil
	})
	return out, err
}

// decodeSplice re-marshals the seqlog's generically-decoded interface{}
// value through msgpack once more to land on the concrete Splice shape,
// the same trick layer.decodeLogEntry uses for wireLogEntry.
func decodeSplice(valu interface{}) (Splice, error) {
	b, err := mpk.Marshal(valu)
	if err != nil {
		return Splice{}, err
	}
	var sp Splice
	if err := mpk.Unmarshal(b, &sp); err != nil {
		return Splice{}, err
	}
	return sp, nil
}
