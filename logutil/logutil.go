// Package logutil wraps zerolog.Logger with the construction and
// field-keyed call shape spec.md's ambient logging expects, standing in for
// the teacher's own `log` package (not part of the retrieval pack) while
// keeping its `Info(msg, "key", value, ...)` call texture via Fields.
// Grounded on other_examples/cuemby-warren's go.mod, the only pack source
// listing rs/zerolog as a dependency.
package logutil

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-rendered logger writing to w at the given level.
// levelName follows zerolog's own names ("debug", "info", "warn", "error");
// an unrecognized name falls back to info.
func New(w io.Writer, levelName string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(levelName)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Default builds a logger writing to stderr at info level, for callers
// (tests, short-lived CLI invocations) that don't need their own sink.
func Default() zerolog.Logger {
	return New(os.Stderr, "info")
}

// Fields chains a batch of key/value pairs onto an in-progress event, the
// zerolog equivalent of the teacher's `log.Info(msg, "key", val, ...)`
// varargs calls. Unrecognized value types fall back to Interface.
func Fields(e *zerolog.Event, kv ...interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		val := kv[i+1]
		switch v := val.(type) {
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case uint64:
			e = e.Uint64(key, v)
		case bool:
			e = e.Bool(key, v)
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
