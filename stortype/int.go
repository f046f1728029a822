package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// IntHandler implements fixed-width signed/unsigned integers, ported from
// StorTypeInt in layer.py: big-endian encode(v + bias), bias =
// 2^(8*size-1)-1 for signed, 0 for unsigned; <v / >v rewritten onto the
// inclusive forms exactly as _liftIntLt/_liftIntGt do.
type IntHandler struct {
	code   Code
	size   int
	signed bool
	offset uint64 // only meaningful for size<=8; bigger widths use BigIntHandler
}

func NewIntHandler(code Code, size int, signed bool) *IntHandler {
	h := &IntHandler{code: code, size: size, signed: signed}
	if signed {
		h.offset = (uint64(1) << (uint(size)*8 - 1)) - 1
	}
	return h
}

func (h *IntHandler) Code() Code { return h.code }

func toInt64(valu interface{}) (int64, bool) {
	switch v := valu.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (h *IntHandler) encode(signedVal int64) []byte {
	var biased uint64
	if h.signed {
		biased = uint64(signedVal) + h.offset
	} else {
		biased = uint64(signedVal)
	}
	out := make([]byte, h.size)
	for i := h.size - 1; i >= 0; i-- {
		out[i] = byte(biased)
		biased >>= 8
	}
	return out
}

func (h *IntHandler) Indx(valu interface{}) ([]byte, error) {
	v, ok := toInt64(valu)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an integer, got %T", layerr.ErrBadStorType, h.code, valu)
	}
	return h.encode(v), nil
}

func (h *IntHandler) zeroBytes() []byte { return make([]byte, h.size) }
func (h *IntHandler) fullBytes() []byte {
	b := make([]byte, h.size)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

func (h *IntHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toInt64(valu)
	if !ok {
		return fmt.Errorf("%w: %s = expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByDups(ctx, h.encode(v), yield)
}

func (h *IntHandler) liftGe(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toInt64(valu)
	if !ok {
		return fmt.Errorf("%w: %s >= expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.encode(v), h.fullBytes(), yield)
}

func (h *IntHandler) liftGt(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toInt64(valu)
	if !ok {
		return fmt.Errorf("%w: %s > expects an integer", layerr.ErrBadStorType, h.code)
	}
	return h.liftGe(ctx, ib, v+1, yield)
}

func (h *IntHandler) liftLe(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toInt64(valu)
	if !ok {
		return fmt.Errorf("%w: %s <= expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.zeroBytes(), h.encode(v), yield)
}

func (h *IntHandler) liftLt(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toInt64(valu)
	if !ok {
		return fmt.Errorf("%w: %s < expects an integer", layerr.ErrBadStorType, h.code)
	}
	return h.liftLe(ctx, ib, v-1, yield)
}

func (h *IntHandler) liftRange(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	pair, ok := valu.([2]int64)
	if !ok {
		return fmt.Errorf("%w: %s range= expects [2]int64", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.encode(pair[0]), h.encode(pair[1]), yield)
}

func (h *IntHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":      h.liftEq,
		"<":      h.liftLt,
		"<=":     h.liftLe,
		">":      h.liftGt,
		">=":     h.liftGe,
		"range=": h.liftRange,
	}
}
