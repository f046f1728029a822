// Package layerr holds the abstract error kinds of spec.md §7, mapped to
// Go sentinel errors that wrap additional context via fmt.Errorf("%w", ...).
package layerr

import "errors"

var (
	// ErrNoSuchCmpr: a lifter was requested for a comparator a storage type
	// does not expose. Raised synchronously; no state change.
	ErrNoSuchCmpr = errors.New("no such comparator")

	// ErrNoSuchImpl: a lifter that requires re-reading the stored value was
	// invoked on a context that cannot supply one (e.g. a typed range lift
	// over a tagprop IndxBy with no getNodeValu backing).
	ErrNoSuchImpl = errors.New("lifter not implemented for this context")

	// ErrNotANumberCompared: a numeric range comparator received NaN.
	ErrNotANumberCompared = errors.New("range comparator received NaN")

	// ErrBadStorType: a value does not have the Go type its storage type
	// expects (returned by stortype's Indx and lifters). Lifts do not skip
	// stored rows that fail to decode; the decode error is returned instead.
	ErrBadStorType = errors.New("stored value does not match declared storage type")

	// ErrReadOnly: write attempted against a read-only layer.
	ErrReadOnly = errors.New("layer is read-only")
)
