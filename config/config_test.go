package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	require := require.New(t)
	cfg, err := Parse([]byte(``))
	require.NoError(err)
	require.False(cfg.LockMemory)
	require.False(cfg.ReadOnly)
	require.Nil(cfg.Upstreams)
	require.Equal(defaultWindowCapacity, cfg.WindowCapacity)
}

func TestParseUpstreamScalar(t *testing.T) {
	require := require.New(t)
	cfg, err := Parse([]byte(`upstream: peer1.example:30303`))
	require.NoError(err)
	require.Equal([]string{"peer1.example:30303"}, cfg.Upstreams)
}

func TestParseUpstreamList(t *testing.T) {
	require := require.New(t)
	cfg, err := Parse([]byte(`
upstream:
  - peer1.example:30303
  - peer2.example:30303
`))
	require.NoError(err)
	require.Equal([]string{"peer1.example:30303", "peer2.example:30303"}, cfg.Upstreams)
}

func TestParseUpstreamEmptyScalar(t *testing.T) {
	require := require.New(t)
	cfg, err := Parse([]byte(`upstream: ""`))
	require.NoError(err)
	require.Nil(cfg.Upstreams)
}

func TestParseUpstreamInvalidKind(t *testing.T) {
	require := require.New(t)
	_, err := Parse([]byte(`
upstream:
  host: peer1.example
`))
	require.Error(err)
}

func TestParseFullConfig(t *testing.T) {
	require := require.New(t)
	cfg, err := Parse([]byte(`
lockmemory: true
readonly: true
fallback: true
mapsize: 1GB
windowcapacity: 500
upstream: peer1.example:30303
`))
	require.NoError(err)
	require.True(cfg.LockMemory)
	require.True(cfg.ReadOnly)
	require.True(cfg.Fallback)
	require.Equal(uint64(1<<30), cfg.MapSize.Bytes())
	require.Equal(500, cfg.WindowCapacity)
	require.Equal([]string{"peer1.example:30303"}, cfg.Upstreams)
}

func TestLoadMissingFile(t *testing.T) {
	require := require.New(t)
	_, err := Load("/nonexistent/path/to/config.yaml")
	require.Error(err)
}
