package stortype

import (
	"bytes"
	"context"
	"sort"
)

// fakeIndxBy is a minimal in-memory IndxBy for exercising Handler
// implementations without a real kv backend: a sorted list of (indx, buid)
// rows plus a values table for GetNodeValu-dependent lifters (regex,
// typed-range post-filters).
type fakeIndxBy struct {
	rows   []fakeRow
	values map[Buid]interface{}
}

type fakeRow struct {
	indx []byte
	buid Buid
}

func newFakeIndxBy() *fakeIndxBy {
	return &fakeIndxBy{values: map[Buid]interface{}{}}
}

func (f *fakeIndxBy) add(indx []byte, b Buid, valu interface{}) {
	f.rows = append(f.rows, fakeRow{indx: indx, buid: b})
	f.values[b] = valu
	sort.Slice(f.rows, func(i, j int) bool { return bytes.Compare(f.rows[i].indx, f.rows[j].indx) < 0 })
}

func buid(n byte) Buid {
	var b Buid
	b[len(b)-1] = n
	return b
}

func (f *fakeIndxBy) BuidsByDups(_ context.Context, indx []byte, yield Yield) error {
	for _, r := range f.rows {
		if bytes.Equal(r.indx, indx) {
			more, err := yield(r.buid)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

func (f *fakeIndxBy) BuidsByPref(_ context.Context, indx []byte, yield Yield) error {
	for _, r := range f.rows {
		if bytes.HasPrefix(r.indx, indx) {
			more, err := yield(r.buid)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

func (f *fakeIndxBy) BuidsByRange(_ context.Context, lo, hi []byte, yield Yield) error {
	for _, r := range f.rows {
		if bytes.Compare(r.indx, lo) >= 0 && bytes.Compare(r.indx, hi) <= 0 {
			more, err := yield(r.buid)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

func (f *fakeIndxBy) ScanByPref(_ context.Context, indx []byte, yield KeyYield) error {
	for _, r := range f.rows {
		if bytes.HasPrefix(r.indx, indx) {
			more, err := yield(r.indx, r.buid)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

func (f *fakeIndxBy) ScanByRange(_ context.Context, lo, hi []byte, yield KeyYield) error {
	for _, r := range f.rows {
		if bytes.Compare(r.indx, lo) >= 0 && bytes.Compare(r.indx, hi) <= 0 {
			more, err := yield(r.indx, r.buid)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

func (f *fakeIndxBy) GetNodeValu(_ context.Context, b Buid) (interface{}, error) {
	return f.values[b], nil
}

func collect(yield func(Yield) error) ([]Buid, error) {
	var out []Buid
	err := yield(func(b Buid) (bool, error) {
		out = append(out, b)
		return true, nil
	})
	return out, err
}
