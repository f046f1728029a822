package mpk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	require := require.New(t)

	type row struct {
		Valu     interface{}
		StorType int64
	}

	in := row{Valu: "woot.com", StorType: 7}
	b, err := Marshal(in)
	require.NoError(err)
	require.NotEmpty(b)

	var out row
	require.NoError(Unmarshal(b, &out))
	require.Equal(in.StorType, out.StorType)
	require.Equal(in.Valu, out.Valu)
}

func TestMarshalPreservesIntegerWidth(t *testing.T) {
	require := require.New(t)

	b, err := Marshal(int64(-5))
	require.NoError(err)

	var out int64
	require.NoError(Unmarshal(b, &out))
	require.Equal(int64(-5), out)
}

func TestUnmarshalRejectsTruncatedBytes(t *testing.T) {
	require := require.New(t)
	var out string
	// fixstr header announcing 5 bytes, followed by only 2.
	require.Error(Unmarshal([]byte{0xa5, 'w', 'o'}, &out))
}

func TestMarshalSlice(t *testing.T) {
	require := require.New(t)
	in := []interface{}{int64(1), "two", true}
	b, err := Marshal(in)
	require.NoError(err)

	var out []interface{}
	require.NoError(Unmarshal(b, &out))
	require.Len(out, 3)
}
