package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// TimeHandler is a signed 64-bit big-endian integer (epoch millis) with one
// extra comparator, @=, for right-open interval containment: does the
// stored time fall in [lo, hi)? Ported from StorTypeTime in layer.py,
// which is StorTypeInt(8, signed=True) plus _liftAtIval.
type TimeHandler struct {
	*IntHandler
}

func NewTimeHandler() *TimeHandler {
	return &TimeHandler{IntHandler: NewIntHandler(TIME, 8, true)}
}

func (h *TimeHandler) liftAtIval(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	pair, ok := valu.([2]int64)
	if !ok {
		return fmt.Errorf("%w: TIME @= expects [2]int64 (right-open interval)", layerr.ErrBadStorType)
	}
	lo := h.encode(pair[0])
	hi := h.encode(pair[1] - 1) // hi is exclusive; source subtracts 1 before the inclusive range scan
	return ib.BuidsByRange(ctx, lo, hi, yield)
}

func (h *TimeHandler) Lifters() map[string]Lifter {
	out := h.IntHandler.Lifters()
	out["@="] = h.liftAtIval
	return out
}
