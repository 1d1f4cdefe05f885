package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bft-labs/pixport/internal/domain"
)

// DefaultChunkSize is the number of long cadences exported per orchestrator run.
const DefaultChunkSize = 500

// Config holds CLI configuration for pixport.
type Config struct {
	Start  int
	End    int
	Option string

	OutputDir  string
	MetadataDB string
	BlobDir    string

	Threads   int
	ChunkSize int

	Quarter     int
	DataRelease int
	Description string

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Option:     domain.CadenceAll.String(),
		OutputDir:  ".",
		MetadataDB: "pixport.db",
		BlobDir:    "blobs",
		Threads:    4,
		ChunkSize:  DefaultChunkSize,
		LogLevel:   "info",
	}
}

// CadenceOption returns the parsed cadence option.
func (c *Config) CadenceOption() (domain.CadenceOption, error) {
	return domain.ParseCadenceOption(c.Option)
}

// Validate checks the configuration for errors before any work is done. The
// output directory is created if missing and probed for writability.
func (c *Config) Validate() error {
	if c.Start < 0 || c.End < 0 {
		return invalid("cadence range must be non-negative")
	}
	if c.Start > c.End {
		return invalid(fmt.Sprintf("start cadence %d after end cadence %d", c.Start, c.End))
	}
	if _, err := c.CadenceOption(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if c.Threads < 1 {
		return invalid("threads must be at least 1")
	}
	if c.ChunkSize < 1 {
		return invalid("chunk size must be at least 1")
	}
	if c.Quarter < 0 || c.DataRelease < 0 {
		return invalid("quarter and data release must be non-negative")
	}
	if c.MetadataDB == "" {
		return invalid("metadata-db is required")
	}
	if c.BlobDir == "" {
		return invalid("blob-dir is required")
	}
	if c.OutputDir == "" {
		return invalid("output-dir is required")
	}
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", domain.ErrInvalidConfig, err)
	}
	probe, err := os.CreateTemp(c.OutputDir, ".pixport-probe-*")
	if err != nil {
		return fmt.Errorf("%w: output dir not writable: %v", domain.ErrInvalidConfig, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	c.OutputDir = filepath.Clean(c.OutputDir)
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, msg)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if set and flag not changed. Cadence numbers may
// legitimately be zero, so nil rather than zero means unset.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}
