package cliconfig

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"PIXPORT_START":       "0",
				"PIXPORT_END":         "1200",
				"PIXPORT_OPTION":      "long",
				"PIXPORT_OUTPUT_DIR":  "/env/out",
				"PIXPORT_THREADS":     "8",
				"PIXPORT_CHUNK_SIZE":  "100",
				"PIXPORT_QUARTER":     "3",
				"PIXPORT_DESCRIPTION": "env run",
			},
			changed: map[string]bool{},
			initial: Config{Start: 5},
			expected: Config{
				Start:       0,
				End:         1200,
				Option:      "long",
				OutputDir:   "/env/out",
				Threads:     8,
				ChunkSize:   100,
				Quarter:     3,
				Description: "env run",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"PIXPORT_OUTPUT_DIR": "/env/out",
				"PIXPORT_THREADS":    "8",
			},
			changed:  map[string]bool{"output-dir": true, "threads": true},
			initial:  Config{OutputDir: "/flag/out", Threads: 2},
			expected: Config{OutputDir: "/flag/out", Threads: 2},
		},
		{
			name:     "empty env leaves config",
			envVars:  map[string]string{},
			changed:  map[string]bool{},
			initial:  Config{MetadataDB: "a.db", End: 9},
			expected: Config{MetadataDB: "a.db", End: 9},
		},
		{
			name:    "invalid integer",
			envVars: map[string]string{"PIXPORT_THREADS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"START", "END", "OPTION", "OUTPUT_DIR", "METADATA_DB", "BLOB_DIR",
				"THREADS", "CHUNK_SIZE", "QUARTER", "DATA_RELEASE", "DESCRIPTION", "LOG_LEVEL"} {
				t.Setenv(EnvPrefix+k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.expected, cfg); diff != "" {
				t.Errorf("ApplyEnvConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
