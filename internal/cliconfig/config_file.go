package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for TOML and YAML files. Integers are pointers so
// that an explicit zero cadence is distinguishable from an absent key.
type FileConfig struct {
	Start       *int   `toml:"start" yaml:"start"`
	End         *int   `toml:"end" yaml:"end"`
	Option      string `toml:"option" yaml:"option"`
	OutputDir   string `toml:"output_dir" yaml:"output_dir"`
	MetadataDB  string `toml:"metadata_db" yaml:"metadata_db"`
	BlobDir     string `toml:"blob_dir" yaml:"blob_dir"`
	Threads     *int   `toml:"threads" yaml:"threads"`
	ChunkSize   *int   `toml:"chunk_size" yaml:"chunk_size"`
	Quarter     *int   `toml:"quarter" yaml:"quarter"`
	DataRelease *int   `toml:"data_release" yaml:"data_release"`
	Description string `toml:"description" yaml:"description"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
}

// LoadFileConfig reads and parses a config file from the given path. Paths
// ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.pixport/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pixport", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("option", fc.Option, &cfg.Option)
	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("metadata-db", fc.MetadataDB, &cfg.MetadataDB)
	s.setString("blob-dir", fc.BlobDir, &cfg.BlobDir)
	s.setString("description", fc.Description, &cfg.Description)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("start", fc.Start, &cfg.Start)
	s.setInt("end", fc.End, &cfg.End)
	s.setInt("threads", fc.Threads, &cfg.Threads)
	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)
	s.setInt("quarter", fc.Quarter, &cfg.Quarter)
	s.setInt("data-release", fc.DataRelease, &cfg.DataRelease)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
