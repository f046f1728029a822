package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// registry is the Code -> Handler table, built once. Ported from the
// stortypes dict literal at the bottom of layer.py's StorType section.
var registry = buildRegistry()

func buildRegistry() map[Code]Handler {
	m := map[Code]Handler{
		UTF8:    NewUtf8Handler(),
		U8:      NewIntHandler(U8, 1, false),
		U16:     NewIntHandler(U16, 2, false),
		U32:     NewIntHandler(U32, 4, false),
		U64:     NewIntHandler(U64, 8, false),
		I8:      NewIntHandler(I8, 1, true),
		I16:     NewIntHandler(I16, 2, true),
		I32:     NewIntHandler(I32, 4, true),
		I64:     NewIntHandler(I64, 8, true),
		U128:    NewBigIntHandler(U128, 16, false),
		I128:    NewBigIntHandler(I128, 16, true),
		GUID:    NewGuidHandler(),
		TIME:    NewTimeHandler(),
		IVAL:    NewIvalHandler(),
		MSGP:    NewMsgpHandler(),
		LATLONG: NewLatLongHandler(),
		LOC:     NewHierHandler(LOC),
		TAG:     NewHierHandler(TAG),
		FQDN:    NewFqdnHandler(),
		IPV6:    NewIpv6Handler(),
	}
	return m
}

// Dispatch returns the Handler for a scalar (non-array) Code.
func Dispatch(code Code) (Handler, error) {
	real := code.RealType()
	h, ok := registry[real]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", layerr.ErrNoSuchImpl, code)
	}
	return h, nil
}

// IndxArray returns one index byte string per element of an array-typed
// value, each produced by the real (non-array) type's Indx. Ported from
// getStorIndx's array branch in layer.py: every element is indexed
// independently under byarray, in addition to the whole array being
// indexed once (as MSGP) under byprop by the caller.
func IndxArray(code Code, valu interface{}) ([][]byte, error) {
	if !code.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array storage type", layerr.ErrBadStorType, code)
	}
	h, err := Dispatch(code)
	if err != nil {
		return nil, err
	}
	items, ok := valu.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: array %s expects []interface{}, got %T", layerr.ErrBadStorType, code, valu)
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		indx, err := h.Indx(item)
		if err != nil {
			return nil, err
		}
		out = append(out, indx)
	}
	return out, nil
}

// WholeArrayIndx indexes the entire array value as a single MSGP digest,
// the byprop-level index used alongside the per-element byarray rows.
func WholeArrayIndx(valu interface{}) ([]byte, error) {
	return NewMsgpHandler().Indx(valu)
}

// LiftArray runs cmpr against every element, delegating to the real type's
// lifters, for the per-element array comparators (e.g. tag~=*.*.foo over an
// array-of-tag property). Whole-array equality is handled separately by the
// caller via WholeArrayIndx + BuidsByDups, matching getStorIndx's two-level
// array design in layer.py.
func LiftArray(ctx context.Context, code Code, ib IndxBy, cmpr string, valu interface{}, yield Yield) error {
	h, err := Dispatch(code)
	if err != nil {
		return err
	}
	return Lift(ctx, h, ib, cmpr, valu, yield)
}
