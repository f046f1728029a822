package stortype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIvalHandlerIndxConcatenatesTickTock(t *testing.T) {
	require := require.New(t)
	h := NewIvalHandler()
	indx, err := h.Indx([2]int64{10, 20})
	require.NoError(err)
	require.Len(indx, 16)
}

func TestIvalHandlerLiftEqMatchesExactPair(t *testing.T) {
	require := require.New(t)
	h := NewIvalHandler()
	ib := newFakeIndxBy()

	b1 := buid(1)
	indx, err := h.Indx([2]int64{10, 20})
	require.NoError(err)
	ib.add(indx, b1, [2]int64{10, 20})

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, [2]int64{10, 20}, y) })
	require.NoError(err)
	require.Equal([]Buid{b1}, got)
}

func TestIvalHandlerLiftAtFindsOverlappingIntervals(t *testing.T) {
	require := require.New(t)
	h := NewIvalHandler()
	ib := newFakeIndxBy()

	b1, b2, b3 := buid(1), buid(2), buid(3)
	for _, row := range []struct {
		b          Buid
		tick, tock int64
	}{
		{b1, 0, 5},   // ends before query starts -> excluded
		{b2, 3, 12},  // overlaps query window
		{b3, 20, 30}, // starts after query ends -> excluded
	} {
		indx, err := h.Indx([2]int64{row.tick, row.tock})
		require.NoError(err)
		ib.add(indx, row.b, [2]int64{row.tick, row.tock})
	}

	got, err := collect(func(y Yield) error {
		return h.liftAt(context.Background(), ib, [2]int64{10, 15}, y)
	})
	require.NoError(err)
	require.Equal([]Buid{b2}, got)
}

func TestIvalHandlerIndxRejectsWrongShape(t *testing.T) {
	require := require.New(t)
	h := NewIvalHandler()
	_, err := h.Indx("nope")
	require.Error(err)
}
