package logutil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	log := New(&buf, "not-a-level")
	require.Equal(zerolog.InfoLevel, log.GetLevel())
}

func TestNewHonorsRequestedLevel(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	log := New(&buf, "debug")
	require.Equal(zerolog.DebugLevel, log.GetLevel())
}

func TestFieldsEncodesEachRecognizedType(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	e := log.Info()
	e = Fields(e, "name", "woot.com", "count", 3, "ok", true, "err", errors.New("boom"))
	e.Msg("done")

	out := buf.String()
	require.Contains(out, "woot.com")
	require.Contains(out, "boom")
}

func TestFieldsSkipsOddTrailingArg(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	e := Fields(log.Info(), "name", "woot.com", "dangling")
	e.Msg("done")
	require.Contains(buf.String(), "woot.com")
}

func TestDefaultReturnsInfoLevelLogger(t *testing.T) {
	require := require.New(t)
	require.Equal(zerolog.InfoLevel, Default().GetLevel())
}
