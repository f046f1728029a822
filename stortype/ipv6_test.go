package stortype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIpv6HandlerIndxPacksTo16Bytes(t *testing.T) {
	require := require.New(t)
	h := NewIpv6Handler()
	indx, err := h.Indx("::1")
	require.NoError(err)
	require.Len(indx, 16)
}

func TestIpv6HandlerIndxAcceptsEmbeddedIpv4(t *testing.T) {
	require := require.New(t)
	h := NewIpv6Handler()
	indx, err := h.Indx("::ffff:1.2.3.4")
	require.NoError(err)
	require.Len(indx, 16)
}

func TestIpv6HandlerIndxRejectsGarbage(t *testing.T) {
	require := require.New(t)
	h := NewIpv6Handler()
	_, err := h.Indx("not-an-ip")
	require.Error(err)
}

func TestIpv6HandlerLiftEqAndRange(t *testing.T) {
	require := require.New(t)
	h := NewIpv6Handler()
	ib := newFakeIndxBy()

	b1, b2, b3 := buid(1), buid(2), buid(3)
	for _, row := range []struct {
		b Buid
		s string
	}{{b1, "::1"}, {b2, "::2"}, {b3, "::3"}} {
		indx, err := h.Indx(row.s)
		require.NoError(err)
		ib.add(indx, row.b, row.s)
	}

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, "::2", y) })
	require.NoError(err)
	require.Equal([]Buid{b2}, got)

	got, err = collect(func(y Yield) error {
		return h.liftRange(context.Background(), ib, [2]string{"::1", "::2"}, y)
	})
	require.NoError(err)
	require.ElementsMatch([]Buid{b1, b2}, got)
}
