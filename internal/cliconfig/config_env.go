package cliconfig

import "os"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PIXPORT_"

// ApplyEnvConfig applies configuration from environment variables (PIXPORT_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("option", os.Getenv(EnvPrefix+"OPTION"), &cfg.Option)
	s.setString("output-dir", os.Getenv(EnvPrefix+"OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("metadata-db", os.Getenv(EnvPrefix+"METADATA_DB"), &cfg.MetadataDB)
	s.setString("blob-dir", os.Getenv(EnvPrefix+"BLOB_DIR"), &cfg.BlobDir)
	s.setString("description", os.Getenv(EnvPrefix+"DESCRIPTION"), &cfg.Description)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)

	ints := []struct {
		flag string
		env  string
		dst  *int
	}{
		{"start", "START", &cfg.Start},
		{"end", "END", &cfg.End},
		{"threads", "THREADS", &cfg.Threads},
		{"chunk-size", "CHUNK_SIZE", &cfg.ChunkSize},
		{"quarter", "QUARTER", &cfg.Quarter},
		{"data-release", "DATA_RELEASE", &cfg.DataRelease},
	}
	for _, v := range ints {
		if err := s.setIntFromString(v.flag, os.Getenv(EnvPrefix+v.env), v.dst); err != nil {
			return err
		}
	}
	return nil
}
