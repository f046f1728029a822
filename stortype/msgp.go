package stortype

import (
	"context"

	"github.com/ledgerwatch/graphlayer/mpk"
	"golang.org/x/crypto/blake2b"
)

// MsgpHandler indexes an arbitrary structured value (used for msgpack-able
// properties with no more specific type — dict/list form properties, JSON
// blobs) by the blake2b-256 digest of its canonical msgpack encoding. Only
// equality is supported, since there is no ordering over structured values.
// Ported from StorTypeMsgp in layer.py (s_common.buid over msgpack bytes);
// blake2b comes from golang.org/x/crypto, already a teacher dependency.
type MsgpHandler struct{}

func NewMsgpHandler() *MsgpHandler { return &MsgpHandler{} }

func (h *MsgpHandler) Code() Code { return MSGP }

func (h *MsgpHandler) Indx(valu interface{}) ([]byte, error) {
	enc, err := mpk.Marshal(valu)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(enc)
	return sum[:], nil
}

func (h *MsgpHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	indx, err := h.Indx(valu)
	if err != nil {
		return err
	}
	return ib.BuidsByDups(ctx, indx, yield)
}

func (h *MsgpHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{"=": h.liftEq}
}
