// Package config loads the options a layer is opened with: the `lockmemory`,
// `readonly`, `upstream`, and `fallback` table from spec.md §6, plus the
// backend/window sizing knobs the core needs but the query-language runtime
// never sees. Grounded on other_examples/cuemby-warren's go.mod, the only
// pack source listing gopkg.in/yaml.v3 as a dependency; the teacher's own
// config loader was not part of the retrieval pack.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is everything needed to open one layer instance.
type Config struct {
	// LockMemory is passed through to kv.LMDBOpts.LockMemory; the LMDB
	// backend does not lock its memory maps, so it has no effect on the
	// opened environment.
	LockMemory bool `yaml:"lockmemory"`
	// ReadOnly opens the backend read-only and rejects all writes.
	ReadOnly bool `yaml:"readonly"`
	// Upstreams lists peer URLs this layer follows. Accepts either a single
	// string or a list in YAML under `upstream`; see decodeUpstream below.
	Upstreams []string `yaml:"-"`
	// Fallback additionally writes legacy splices to the splices log.
	Fallback bool `yaml:"fallback"`
	// MapSize bounds the backend's memory-mapped region.
	MapSize datasize.ByteSize `yaml:"mapsize"`
	// WindowCapacity bounds each live-subscriber queue (window.Fanout).
	WindowCapacity int `yaml:"windowcapacity"`
}

const defaultWindowCapacity = 10000

// rawConfig mirrors Config but lets `upstream` arrive as either a scalar or
// a sequence, the way the source's config loader accepts both spellings.
type rawConfig struct {
	LockMemory     bool              `yaml:"lockmemory"`
	ReadOnly       bool              `yaml:"readonly"`
	Upstream       yaml.Node         `yaml:"upstream"`
	Fallback       bool              `yaml:"fallback"`
	MapSize        datasize.ByteSize `yaml:"mapsize"`
	WindowCapacity int               `yaml:"windowcapacity"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes YAML config bytes into a Config, defaulting WindowCapacity
// when unset.
func Parse(b []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	ups, err := decodeUpstream(raw.Upstream)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LockMemory:     raw.LockMemory,
		ReadOnly:       raw.ReadOnly,
		Upstreams:      ups,
		Fallback:       raw.Fallback,
		MapSize:        raw.MapSize,
		WindowCapacity: raw.WindowCapacity,
	}
	if cfg.WindowCapacity == 0 {
		cfg.WindowCapacity = defaultWindowCapacity
	}
	return cfg, nil
}

func decodeUpstream(n yaml.Node) ([]string, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return []string{s}, nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("config: upstream must be a string or list, got %v", n.Kind)
	}
}
