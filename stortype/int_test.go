package stortype

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntHandlerSignedEncodingPreservesOrder(t *testing.T) {
	require := require.New(t)
	h := NewIntHandler(I32, 4, true)

	negIndx, err := h.Indx(int64(-5))
	require.NoError(err)
	zeroIndx, err := h.Indx(int64(0))
	require.NoError(err)
	posIndx, err := h.Indx(int64(5))
	require.NoError(err)

	require.True(bytes.Compare(negIndx, zeroIndx) < 0, "negative must sort before zero")
	require.True(bytes.Compare(zeroIndx, posIndx) < 0, "zero must sort before positive")
}

func TestIntHandlerUnsignedIndx(t *testing.T) {
	require := require.New(t)
	h := NewIntHandler(U16, 2, false)
	indx, err := h.Indx(int64(1))
	require.NoError(err)
	require.Equal([]byte{0x00, 0x01}, indx)
}

func TestIntHandlerIndxRejectsNonInteger(t *testing.T) {
	require := require.New(t)
	h := NewIntHandler(U8, 1, false)
	_, err := h.Indx("nope")
	require.Error(err)
}

func TestIntHandlerLiftEq(t *testing.T) {
	require := require.New(t)
	h := NewIntHandler(I64, 8, true)
	ib := newFakeIndxBy()

	indx7, _ := h.Indx(int64(7))
	b1 := buid(1)
	ib.add(indx7, b1, int64(7))

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, int64(7), y) })
	require.NoError(err)
	require.Equal([]Buid{b1}, got)
}

func TestIntHandlerLiftRangeAndComparators(t *testing.T) {
	require := require.New(t)
	h := NewIntHandler(I32, 4, true)
	ib := newFakeIndxBy()

	buids := map[int64]Buid{-10: buid(1), 0: buid(2), 5: buid(3), 20: buid(4)}
	for v, b := range buids {
		indx, _ := h.Indx(v)
		ib.add(indx, b, v)
	}

	t.Run("ge", func(t *testing.T) {
		got, err := collect(func(y Yield) error { return h.liftGe(context.Background(), ib, int64(0), y) })
		require.NoError(err)
		require.ElementsMatch([]Buid{buids[0], buids[5], buids[20]}, got)
	})

	t.Run("gt", func(t *testing.T) {
		got, err := collect(func(y Yield) error { return h.liftGt(context.Background(), ib, int64(0), y) })
		require.NoError(err)
		require.ElementsMatch([]Buid{buids[5], buids[20]}, got)
	})

	t.Run("le", func(t *testing.T) {
		got, err := collect(func(y Yield) error { return h.liftLe(context.Background(), ib, int64(0), y) })
		require.NoError(err)
		require.ElementsMatch([]Buid{buids[-10], buids[0]}, got)
	})

	t.Run("lt", func(t *testing.T) {
		got, err := collect(func(y Yield) error { return h.liftLt(context.Background(), ib, int64(0), y) })
		require.NoError(err)
		require.ElementsMatch([]Buid{buids[-10]}, got)
	})

	t.Run("range", func(t *testing.T) {
		got, err := collect(func(y Yield) error {
			return h.liftRange(context.Background(), ib, [2]int64{-10, 5}, y)
		})
		require.NoError(err)
		require.ElementsMatch([]Buid{buids[-10], buids[0], buids[5]}, got)
	})
}

func TestDispatchUnknownCode(t *testing.T) {
	require := require.New(t)
	_, err := Dispatch(Code(9999))
	require.Error(err)
}

func TestDispatchKnownCodes(t *testing.T) {
	require := require.New(t)
	for _, code := range []Code{UTF8, U8, U16, U32, U64, I8, I16, I32, I64, U128, I128, GUID, TIME, IVAL, MSGP, LATLONG, LOC, TAG, FQDN, IPV6} {
		h, err := Dispatch(code)
		require.NoError(err)
		require.Equal(code, h.Code())
	}
}

func TestDispatchArrayCodeStripsFlag(t *testing.T) {
	require := require.New(t)
	h, err := Dispatch(U32 | ArrayFlag)
	require.NoError(err)
	require.Equal(U32, h.Code())
}
