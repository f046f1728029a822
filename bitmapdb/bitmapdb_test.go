package bitmapdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddContainsRemove(t *testing.T) {
	require := require.New(t)
	s := New()

	s.Add(1)
	s.Add(2)
	require.True(s.Contains(1))
	require.True(s.Contains(2))
	require.False(s.Contains(3))
	require.Equal(uint64(2), s.Len())

	s.Remove(1)
	require.False(s.Contains(1))
	require.Equal(uint64(1), s.Len())
}

func TestSetEachYieldsAscending(t *testing.T) {
	require := require.New(t)
	s := New()
	for _, id := range []uint32{5, 1, 3} {
		s.Add(id)
	}

	var got []uint32
	s.Each(func(id uint32) { got = append(got, id) })
	require.Equal([]uint32{1, 3, 5}, got)
}

func TestSetCloneIsIndependent(t *testing.T) {
	require := require.New(t)
	s := New()
	s.Add(1)

	clone := s.Clone()
	clone.Add(2)

	require.False(s.Contains(2))
	require.True(clone.Contains(2))
}
