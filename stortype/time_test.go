package stortype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeHandlerIndxIsBigEndian8Bytes(t *testing.T) {
	require := require.New(t)
	h := NewTimeHandler()
	indx, err := h.Indx(int64(1000))
	require.NoError(err)
	require.Len(indx, 8)
}

func TestTimeHandlerLiftAtIvalFindsContainedTimes(t *testing.T) {
	require := require.New(t)
	h := NewTimeHandler()
	ib := newFakeIndxBy()

	b1, b2, b3 := buid(1), buid(2), buid(3)
	for _, row := range []struct {
		b Buid
		t int64
	}{{b1, 5}, {b2, 10}, {b3, 20}} {
		indx, err := h.Indx(row.t)
		require.NoError(err)
		ib.add(indx, row.b, row.t)
	}

	got, err := collect(func(y Yield) error {
		return h.liftAtIval(context.Background(), ib, [2]int64{5, 15}, y)
	})
	require.NoError(err)
	require.ElementsMatch([]Buid{b1, b2}, got)
}

func TestTimeHandlerLiftersIncludeAtIval(t *testing.T) {
	require := require.New(t)
	h := NewTimeHandler()
	_, ok := h.Lifters()["@="]
	require.True(ok)
	_, ok = h.Lifters()["="]
	require.True(ok)
}
