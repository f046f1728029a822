package stortype

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// GuidHandler decodes a plain hex string to its raw bytes (16 for a
// standard GUID). Only equality is supported. Ported from StorTypeGuid in
// layer.py (s_common.uhex). Uses stdlib encoding/hex rather than
// pborman/uuid — see DESIGN.md (model GUIDs are undashed hex, not RFC4122
// UUID text).
type GuidHandler struct{}

func NewGuidHandler() *GuidHandler { return &GuidHandler{} }

func (h *GuidHandler) Code() Code { return GUID }

func (h *GuidHandler) decode(valu interface{}) ([]byte, error) {
	s, ok := valu.(string)
	if !ok {
		return nil, fmt.Errorf("%w: GUID expects a hex string, got %T", layerr.ErrBadStorType, valu)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not valid hex: %v", layerr.ErrBadStorType, s, err)
	}
	return b, nil
}

func (h *GuidHandler) Indx(valu interface{}) ([]byte, error) { return h.decode(valu) }

func (h *GuidHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	indx, err := h.decode(valu)
	if err != nil {
		return err
	}
	return ib.BuidsByDups(ctx, indx, yield)
}

func (h *GuidHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{"=": h.liftEq}
}
