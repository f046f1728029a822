package stortype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuidHandlerIndxDecodesHex(t *testing.T) {
	require := require.New(t)
	h := NewGuidHandler()
	indx, err := h.Indx("deadbeef")
	require.NoError(err)
	require.Equal([]byte{0xde, 0xad, 0xbe, 0xef}, indx)
}

func TestGuidHandlerRejectsBadHex(t *testing.T) {
	require := require.New(t)
	h := NewGuidHandler()
	_, err := h.Indx("not-hex!")
	require.Error(err)
}

func TestGuidHandlerRejectsNonString(t *testing.T) {
	require := require.New(t)
	h := NewGuidHandler()
	_, err := h.Indx(123)
	require.Error(err)
}
