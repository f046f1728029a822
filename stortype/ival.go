package stortype

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// IvalHandler indexes a right-open time interval [tick, tock) as the
// concatenation of two 8-byte signed big-endian time indexes. Equality
// matches the exact pair; @= lifts every interval that overlaps the query
// interval, by scanning the whole index and filtering tick/tock in Go,
// since no key order makes overlap a contiguous range. Ported from
// StorTypeIval in layer.py (_liftIvalEq / _liftIvalAt).
type IvalHandler struct {
	time *TimeHandler
}

func NewIvalHandler() *IvalHandler { return &IvalHandler{time: NewTimeHandler()} }

func (h *IvalHandler) Code() Code { return IVAL }

func (h *IvalHandler) pair(valu interface{}) (int64, int64, bool) {
	p, ok := valu.([2]int64)
	if !ok {
		return 0, 0, false
	}
	return p[0], p[1], true
}

func (h *IvalHandler) Indx(valu interface{}) ([]byte, error) {
	tick, tock, ok := h.pair(valu)
	if !ok {
		return nil, fmt.Errorf("%w: IVAL expects [2]int64 (tick, tock)", layerr.ErrBadStorType)
	}
	out := make([]byte, 0, 16)
	out = append(out, h.time.encode(tick)...)
	out = append(out, h.time.encode(tock)...)
	return out, nil
}

func (h *IvalHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	indx, err := h.Indx(valu)
	if err != nil {
		return err
	}
	return ib.BuidsByDups(ctx, indx, yield)
}

// liftAt lifts every stored interval [tick, tock) that overlaps
// [minindx, maxindx). It scans the whole index (there is no sort order that
// makes overlap a contiguous range) and filters on the 16-byte key suffix.
func (h *IvalHandler) liftAt(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	lo, hi, ok := h.pair(valu)
	if !ok {
		return fmt.Errorf("%w: IVAL @= expects [2]int64", layerr.ErrBadStorType)
	}
	minindx := h.time.encode(lo)
	maxindx := h.time.encode(hi)

	filtered := func(key []byte, b Buid) (bool, error) {
		if len(key) < 16 {
			return true, nil // tolerate undersized keys, skip nothing fatally
		}
		suffix := key[len(key)-16:]
		tick := suffix[:8]
		tock := suffix[8:]
		if bytes.Compare(tick, maxindx) >= 0 {
			return true, nil
		}
		if bytes.Compare(tock, minindx) <= 0 {
			return true, nil
		}
		return yield(b)
	}
	return ib.ScanByPref(ctx, nil, filtered)
}

func (h *IvalHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":  h.liftEq,
		"@=": h.liftAt,
	}
}
