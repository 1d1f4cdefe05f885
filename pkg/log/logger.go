package log

import "time"

// Logger is what the exporter, stores and mapping-table resolver log through.
// Per-region and per-chunk progress goes to Info, cache and watcher trouble
// that does not stop an export goes to Warn.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that tags every message with fields, such as the
	// module and output of the region a worker is exporting.
	With(fields ...Field) Logger
}

// Field is one key of a log line. Keys are snake_case, e.g. "indexed_pixels".
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int is used for cadences, channels and counts.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any carries values with no typed constructor, such as the resolved CLI config.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
