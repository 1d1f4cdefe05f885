// Package log is the structured logger handed to pixport's exporter, stores
// and command line. The command line builds a zerolog adapter at the level
// set by --log-level; library callers that pass nil get the no-op logger.
//
// # Usage
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel)
//
// Attach fields that apply to every later message with With:
//
//	regionLog := logger.With(log.Int("module", 2), log.Int("output", 1))
//
// Tests that do not inspect output use:
//
//	logger := log.NewNoopLogger()
package log
