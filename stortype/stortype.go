// Package stortype is the storage-type dispatch table (component T in
// spec.md §2/§4.1): the mapping from semantic value kinds to index byte
// encodings and comparator lifters. Ported from the StorType* class
// hierarchy in original_source/synapse/lib/layer.py (lines ~325-722),
// read in full during the survey.
package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/layerr"
)

// Code is the small integer selecting a storage-type handler. Array
// variants set ArrayFlag on top of the real type's code, matching
// spec.md §3's "stortype | 0x8000".
type Code uint16

const (
	UTF8 Code = iota + 1
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	U128
	I128
	GUID
	TIME
	IVAL
	MSGP
	LATLONG
	LOC
	TAG
	FQDN
	IPV6
)

// ArrayFlag marks an array-of-T storage type.
const ArrayFlag Code = 0x8000

// RealType strips the array flag.
func (c Code) RealType() Code { return c &^ ArrayFlag }

// IsArray reports whether c carries the array flag.
func (c Code) IsArray() bool { return c&ArrayFlag != 0 }

func (c Code) String() string {
	names := map[Code]string{
		UTF8: "UTF8", U8: "U8", U16: "U16", U32: "U32", U64: "U64",
		I8: "I8", I16: "I16", I32: "I32", I64: "I64",
		U128: "U128", I128: "I128", GUID: "GUID", TIME: "TIME", IVAL: "IVAL",
		MSGP: "MSGP", LATLONG: "LATLONG", LOC: "LOC", TAG: "TAG", FQDN: "FQDN", IPV6: "IPV6",
	}
	if c.IsArray() {
		return names[c.RealType()] + "[]"
	}
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// Buid is the 32-byte opaque node identifier.
type Buid [32]byte

// Yield is the per-row callback every lift iterates through. Returning
// (false, nil) stops iteration early without error; returning a non-nil
// error aborts the lift and propagates. This callback shape is the Go
// stand-in for the source's generator-based `yield from` lifters, and is
// where a caller plugs in the "suspend every FAIR_ITERS rows" cooperative
// yield spec.md §5 requires (via ctx checks inside the loop bodies below).
type Yield func(Buid) (bool, error)

// KeyYield is used by lifters that need to inspect the index key itself
// (not just the buid), e.g. IVAL's interval overlap filter and LATLONG's
// bounding-box filter.
type KeyYield func(key []byte, b Buid) (bool, error)

// IndxBy bundles the dup-sort database to scan, the abbreviation-prefixed
// key space within it, and (for regex/typed-range lifters) a way to
// re-read a buid's full stored value. Adapted from the source's IndxBy /
// IndxByForm / IndxByProp / IndxByPropArray / IndxByTagProp adapters.
type IndxBy interface {
	// BuidsByDups yields every buid stored under exactly this index key.
	BuidsByDups(ctx context.Context, indx []byte, yield Yield) error
	// BuidsByPref yields every buid whose index key has this prefix.
	BuidsByPref(ctx context.Context, indx []byte, yield Yield) error
	// BuidsByRange yields every buid whose index key falls in [lo, hi].
	BuidsByRange(ctx context.Context, lo, hi []byte, yield Yield) error
	// ScanByPref is BuidsByPref but exposes the full key to the callback.
	ScanByPref(ctx context.Context, indx []byte, yield KeyYield) error
	// ScanByRange is BuidsByRange but exposes the full key to the callback.
	ScanByRange(ctx context.Context, lo, hi []byte, yield KeyYield) error
	// GetNodeValu re-reads the buid's current stored value for this
	// property, for lifters that must post-filter (regex) or cannot
	// express their comparator purely in index-key space. Returns
	// layerr.ErrNoSuchImpl if this context cannot support it (spec.md §9's
	// "typed range of a tagprop" open question — kept resolved in layer/
	// by always supplying a working GetNodeValu, see DESIGN.md).
	GetNodeValu(ctx context.Context, b Buid) (interface{}, error)
}

// Lifter executes one comparator against an IndxBy adapter.
type Lifter func(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error

// Handler is one storage type's encoding + comparator table.
type Handler interface {
	Code() Code
	// Indx returns the index byte strings for valu — exactly one for every
	// scalar type, more than one only for LATLONG/IVAL-style multi-part
	// encodings is still exactly one concatenated key; true multiplicity
	// only happens at the array level, handled in layer/ by calling Indx
	// once per element.
	Indx(valu interface{}) ([]byte, error)
	// Lifters exposes the comparator table so Dispatch can look one up
	// and report layerr.ErrNoSuchCmpr precisely as the source does.
	Lifters() map[string]Lifter
}

// Lift runs comparator cmpr against ib for valu, using h's lifter table.
func Lift(ctx context.Context, h Handler, ib IndxBy, cmpr string, valu interface{}, yield Yield) error {
	fn, ok := h.Lifters()[cmpr]
	if !ok {
		return fmt.Errorf("%w: %s has no %q comparator", layerr.ErrNoSuchCmpr, h.Code(), cmpr)
	}
	return fn(ctx, ib, valu, yield)
}

// shouldYield checks ctx between rows so long scans cooperatively yield,
// matching spec.md §5's "suspend periodically between rows".
func shouldYield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
