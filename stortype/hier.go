package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// HierHandler implements hierarchical dotted names (LOC, TAG): a trailing
// separator is appended before encoding so that a prefix lift on "foo.bar"
// cannot accidentally match "foo.barbaz". Ported from StorTypeHier in
// layer.py.
type HierHandler struct {
	code Code
	sepr byte
}

func NewHierHandler(code Code) *HierHandler { return &HierHandler{code: code, sepr: '.'} }

func (h *HierHandler) indxBytes(s string) []byte {
	return append([]byte(s), h.sepr)
}

func (h *HierHandler) Code() Code { return h.code }

func (h *HierHandler) Indx(valu interface{}) ([]byte, error) {
	s, ok := valu.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a string, got %T", layerr.ErrBadStorType, h.code, valu)
	}
	return h.indxBytes(s), nil
}

func (h *HierHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	s, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: %s = expects a string", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByDups(ctx, h.indxBytes(s), yield)
}

func (h *HierHandler) liftPrefix(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	s, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: %s ^= expects a string", layerr.ErrBadStorType, h.code)
	}
	return ib.BuidsByPref(ctx, h.indxBytes(s), yield)
}

func (h *HierHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":  h.liftEq,
		"^=": h.liftPrefix,
	}
}
