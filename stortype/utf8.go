package stortype

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cespare/xxhash/v2"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// utf8TruncLen / utf8HashLen implement spec.md §4.1's "truncate to the
// first 248 and append the 8-byte xxh64 of the full encoding" rule for any
// string whose UTF-8 encoding exceeds 256 bytes. Ported from
// StorTypeUtf8._getIndxByts in layer.py, with xxhash.xxh64 wired to
// cespare/xxhash/v2 (see DESIGN.md).
const (
	utf8MaxLen   = 256
	utf8TruncLen = 248
)

func utf8IndxBytes(s string) []byte {
	b := []byte(s)
	if len(b) <= utf8MaxLen {
		return b
	}
	sum := xxhash.Sum64(b)
	out := make([]byte, utf8TruncLen+8)
	copy(out, b[:utf8TruncLen])
	for i := 0; i < 8; i++ {
		out[utf8TruncLen+i] = byte(sum >> (8 * (7 - i)))
	}
	return out
}

// Utf8Handler implements UTF8: equality, prefix, range, and regex
// (post-filtered by re-reading the stored value), ported from
// StorTypeUtf8 in layer.py.
type Utf8Handler struct{ code Code }

func NewUtf8Handler() *Utf8Handler { return &Utf8Handler{code: UTF8} }

func (h *Utf8Handler) Code() Code { return h.code }

func (h *Utf8Handler) Indx(valu interface{}) ([]byte, error) {
	s, ok := valu.(string)
	if !ok {
		return nil, fmt.Errorf("%w: UTF8 expects a string, got %T", layerr.ErrBadStorType, valu)
	}
	return utf8IndxBytes(s), nil
}

func (h *Utf8Handler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	s, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: UTF8 = expects a string", layerr.ErrBadStorType)
	}
	return ib.BuidsByDups(ctx, utf8IndxBytes(s), yield)
}

func (h *Utf8Handler) liftPrefix(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	s, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: UTF8 ^= expects a string", layerr.ErrBadStorType)
	}
	return ib.BuidsByPref(ctx, utf8IndxBytes(s), yield)
}

func (h *Utf8Handler) liftRange(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	pair, ok := valu.([2]string)
	if !ok {
		return fmt.Errorf("%w: UTF8 range= expects [2]string", layerr.ErrBadStorType)
	}
	return ib.BuidsByRange(ctx, utf8IndxBytes(pair[0]), utf8IndxBytes(pair[1]), yield)
}

func (h *Utf8Handler) liftRegex(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	pat, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: UTF8 ~= expects a string pattern", layerr.ErrBadStorType)
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return err
	}
	return ib.ScanByPref(ctx, nil, func(_ []byte, b Buid) (bool, error) {
		stored, err := ib.GetNodeValu(ctx, b)
		if err != nil {
			return true, nil // decode errors tolerated per spec.md §7: skip-and-continue
		}
		s, ok := stored.(string)
		if !ok || !re.MatchString(s) {
			return true, nil
		}
		return yield(b)
	})
}

func (h *Utf8Handler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":      h.liftEq,
		"^=":     h.liftPrefix,
		"range=": h.liftRange,
		"~=":     h.liftRegex,
	}
}
