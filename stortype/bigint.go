package stortype

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// BigIntHandler implements 128-bit integers (U128/I128), which don't fit a
// machine word, via math/big biased into a fixed-width big-endian field.
// Ported from StorTypeInt's big-width branch in layer.py.
type BigIntHandler struct {
	code   Code
	size   int
	signed bool
	offset *big.Int
}

func NewBigIntHandler(code Code, size int, signed bool) *BigIntHandler {
	h := &BigIntHandler{code: code, size: size, signed: signed}
	if signed {
		h.offset = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(size)*8-1), big.NewInt(1))
	}
	return h
}

func (h *BigIntHandler) Code() Code { return h.code }

func toBigInt(valu interface{}) (*big.Int, bool) {
	switch v := valu.(type) {
	case *big.Int:
		return v, true
	case int64:
		return big.NewInt(v), true
	case int:
		return big.NewInt(int64(v)), true
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		return n, ok
	}
	return nil, false
}

func (h *BigIntHandler) encode(v *big.Int) []byte {
	biased := v
	if h.signed {
		biased = new(big.Int).Add(v, h.offset)
	}
	out := make([]byte, h.size)
	b := biased.Bytes()
	if len(b) > h.size {
		b = b[len(b)-h.size:]
	}
	copy(out[h.size-len(b):], b)
	return out
}

func (h *BigIntHandler) zeroBytes() []byte { return make([]byte, h.size) }
func (h *BigIntHandler) fullBytes() []byte {
	b := make([]byte, h.size)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

func (h *BigIntHandler) Indx(valu interface{}) ([]byte, error) {
	v, ok := toBigInt(valu)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an integer, got %T", layerr.ErrBadStorType, h.code, valu)
	}
	return h.encode(v), nil
}

func (h *BigIntHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toBigInt(valu)
	if !ok {
		return fmt.Errorf("%w: %s = expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByDups(ctx, h.encode(v), yield)
}

func (h *BigIntHandler) liftGe(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toBigInt(valu)
	if !ok {
		return fmt.Errorf("%w: %s >= expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.encode(v), h.fullBytes(), yield)
}

func (h *BigIntHandler) liftGt(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toBigInt(valu)
	if !ok {
		return fmt.Errorf("%w: %s > expects an integer", layerr.ErrBadStorType, h.code)
	}
	return h.liftGe(ctx, ib, new(big.Int).Add(v, big.NewInt(1)), yield)
}

func (h *BigIntHandler) liftLe(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toBigInt(valu)
	if !ok {
		return fmt.Errorf("%w: %s <= expects an integer", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.zeroBytes(), h.encode(v), yield)
}

func (h *BigIntHandler) liftLt(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	v, ok := toBigInt(valu)
	if !ok {
		return fmt.Errorf("%w: %s < expects an integer", layerr.ErrBadStorType, h.code)
	}
	return h.liftLe(ctx, ib, new(big.Int).Sub(v, big.NewInt(1)), yield)
}

func (h *BigIntHandler) liftRange(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	pair, ok := valu.([2]*big.Int)
	if !ok {
		return fmt.Errorf("%w: %s range= expects [2]*big.Int", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByRange(ctx, h.encode(pair[0]), h.encode(pair[1]), yield)
}

func (h *BigIntHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":      h.liftEq,
		"<":      h.liftLt,
		"<=":     h.liftLe,
		">":      h.liftGt,
		">=":     h.liftGe,
		"range=": h.liftRange,
	}
}
