package stortype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFqdnHandlerIndxesReversed(t *testing.T) {
	require := require.New(t)
	h := NewFqdnHandler()
	indx, err := h.Indx("woot.com")
	require.NoError(err)
	require.Equal(utf8IndxBytes("moc.toow"), indx)
}

func TestFqdnHandlerEqMatchesExactDomain(t *testing.T) {
	require := require.New(t)
	h := NewFqdnHandler()
	ib := newFakeIndxBy()

	b1, b2 := buid(1), buid(2)
	i1, _ := h.Indx("woot.com")
	i2, _ := h.Indx("vertex.link")
	ib.add(i1, b1, "woot.com")
	ib.add(i2, b2, "vertex.link")

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, "woot.com", y) })
	require.NoError(err)
	require.Equal([]Buid{b1}, got)
}

func TestFqdnHandlerStarMatchesSuffix(t *testing.T) {
	require := require.New(t)
	h := NewFqdnHandler()
	ib := newFakeIndxBy()

	b1, b2, b3 := buid(1), buid(2), buid(3)
	i1, _ := h.Indx("foo.woot.com")
	i2, _ := h.Indx("bar.woot.com")
	i3, _ := h.Indx("other.com")
	ib.add(i1, b1, "foo.woot.com")
	ib.add(i2, b2, "bar.woot.com")
	ib.add(i3, b3, "other.com")

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, "*.woot.com", y) })
	require.NoError(err)
	require.ElementsMatch([]Buid{b1, b2}, got)
}

func TestFqdnHandlerIndxRejectsNonString(t *testing.T) {
	require := require.New(t)
	h := NewFqdnHandler()
	_, err := h.Indx(1)
	require.Error(err)
}
