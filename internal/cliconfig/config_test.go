package cliconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bft-labs/pixport/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Option != "all" {
		t.Errorf("Option = %v, want all", cfg.Option)
	}
	if cfg.Threads != 4 {
		t.Errorf("Threads = %v, want 4", cfg.Threads)
	}
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %v, want %v", cfg.ChunkSize, DefaultChunkSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func(t *testing.T) Config {
		cfg := DefaultConfig()
		cfg.Start, cfg.End = 100, 200
		cfg.OutputDir = filepath.Join(t.TempDir(), "out")
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "single cadence", mutate: func(c *Config) { c.End = c.Start }},
		{name: "start after end", mutate: func(c *Config) { c.Start = 300 }, wantErr: true},
		{name: "negative start", mutate: func(c *Config) { c.Start = -1 }, wantErr: true},
		{name: "unknown option", mutate: func(c *Config) { c.Option = "medium" }, wantErr: true},
		{name: "zero threads", mutate: func(c *Config) { c.Threads = 0 }, wantErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "negative quarter", mutate: func(c *Config) { c.Quarter = -2 }, wantErr: true},
		{name: "missing metadata db", mutate: func(c *Config) { c.MetadataDB = "" }, wantErr: true},
		{name: "missing blob dir", mutate: func(c *Config) { c.BlobDir = "" }, wantErr: true},
		{name: "missing output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_ValidateCreatesOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "a", "b")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	entries, err := os.ReadDir(cfg.OutputDir)
	if err != nil {
		t.Fatalf("output dir not created: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestConfig_ValidateUnwritableOutputDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(blocker, "out")
	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_CadenceOption(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Option = "short"
	opt, err := cfg.CadenceOption()
	if err != nil {
		t.Fatal(err)
	}
	if opt != domain.CadenceShortOnly {
		t.Errorf("CadenceOption() = %v, want short", opt)
	}
}
