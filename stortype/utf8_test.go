package stortype

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUtf8IndxBytesShortStringIsVerbatim(t *testing.T) {
	require := require.New(t)
	require.Equal([]byte("hello"), utf8IndxBytes("hello"))
}

func TestUtf8IndxBytesLongStringTruncatesAndHashes(t *testing.T) {
	require := require.New(t)
	s := strings.Repeat("a", 300)
	indx := utf8IndxBytes(s)
	require.Len(indx, utf8TruncLen+8)
	require.Equal([]byte(s[:utf8TruncLen]), indx[:utf8TruncLen])
}

func TestUtf8HandlerLiftEqAndPrefix(t *testing.T) {
	require := require.New(t)
	h := NewUtf8Handler()
	ib := newFakeIndxBy()

	b1, b2 := buid(1), buid(2)
	i1, _ := h.Indx("foo.com")
	i2, _ := h.Indx("foo.net")
	ib.add(i1, b1, "foo.com")
	ib.add(i2, b2, "foo.net")

	got, err := collect(func(y Yield) error { return h.liftEq(context.Background(), ib, "foo.com", y) })
	require.NoError(err)
	require.Equal([]Buid{b1}, got)

	got, err = collect(func(y Yield) error { return h.liftPrefix(context.Background(), ib, "foo.", y) })
	require.NoError(err)
	require.ElementsMatch([]Buid{b1, b2}, got)
}

func TestUtf8HandlerLiftRegexFiltersByStoredValue(t *testing.T) {
	require := require.New(t)
	h := NewUtf8Handler()
	ib := newFakeIndxBy()

	b1, b2 := buid(1), buid(2)
	i1, _ := h.Indx("alice")
	i2, _ := h.Indx("bob")
	ib.add(i1, b1, "alice")
	ib.add(i2, b2, "bob")

	got, err := collect(func(y Yield) error { return h.liftRegex(context.Background(), ib, "^a.*", y) })
	require.NoError(err)
	require.Equal([]Buid{b1}, got)
}

func TestUtf8HandlerIndxRejectsNonString(t *testing.T) {
	require := require.New(t)
	h := NewUtf8Handler()
	_, err := h.Indx(42)
	require.Error(err)
}
