package stortype

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// FqdnHandler indexes UTF8 on the *reversed* string, so that a prefix scan
// against the reversed remainder answers "ends with" queries cheaply. A
// leading '*' on the equality comparator is a boundary-preserving suffix
// match, not a literal value. Ported from StorTypeFqdn in layer.py, which
// shares STOR_TYPE_UTF8's code and overrides only indx()/'='.
type FqdnHandler struct{}

func NewFqdnHandler() *FqdnHandler { return &FqdnHandler{} }

func (h *FqdnHandler) Code() Code { return FQDN }

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func (h *FqdnHandler) Indx(valu interface{}) ([]byte, error) {
	s, ok := valu.(string)
	if !ok {
		return nil, fmt.Errorf("%w: FQDN expects a string, got %T", layerr.ErrBadStorType, valu)
	}
	return utf8IndxBytes(reverseString(s)), nil
}

func (h *FqdnHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	s, ok := valu.(string)
	if !ok {
		return fmt.Errorf("%w: FQDN = expects a string", layerr.ErrBadStorType)
	}
	if strings.HasPrefix(s, "*") {
		indx := utf8IndxBytes(reverseString(s[1:]))
		return ib.BuidsByPref(ctx, indx, yield)
	}
	indx := utf8IndxBytes(reverseString(s))
	return ib.BuidsByDups(ctx, indx, yield)
}

func (h *FqdnHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=": h.liftEq,
	}
}
