package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/pixport"
	"github.com/bft-labs/pixport/internal/cliconfig"
	"github.com/bft-labs/pixport/pkg/log"
)

const helpDescription = `
Export calibrated detector pixels for a cadence range into per-cadence FITS
files, with cosmic-ray correction tables and processing history alongside.

Highlights:
  - One pixel file per reference header, one table per detector region.
  - Cosmic-ray corrections are subtracted and recorded per data set.
  - Long ranges are exported in chunks; every file is listed with its
    BLAKE3 digest in export-manifest.json.
  - Configure via file (TOML or YAML), PIXPORT_* environment, or flags.
`

var exampleUsage = strings.TrimSpace(`
  pixport --start 1000 --end 1999 --option long --output-dir ./out
  pixport --config $HOME/.pixport/config.yaml --threads 16
  pixport verify ./out
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := log.NewZerologAdapter(zerolog.InfoLevel)

	root := &cobra.Command{
		Use:           "pixport",
		Short:         "Export calibrated detector pixels to per-cadence FITS files",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cliconfig.ApplyFileConfig(&cfg, fc, changed)
			}

			// Environment overrides the file; flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = log.NewZerologAdapter(level)

			if err := cfg.Validate(); err != nil {
				return err
			}
			opt, _ := cfg.CadenceOption()
			logger.Info("configuration", log.Any("config", cfg))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m, err := pixport.Run(ctx, pixport.Config{
				Start:       cfg.Start,
				End:         cfg.End,
				Option:      opt,
				OutputDir:   cfg.OutputDir,
				Threads:     cfg.Threads,
				ChunkSize:   cfg.ChunkSize,
				MetadataDB:  cfg.MetadataDB,
				BlobDir:     cfg.BlobDir,
				Quarter:     cfg.Quarter,
				DataRelease: cfg.DataRelease,
				Description: cfg.Description,
			}, logger)
			if err != nil {
				return err
			}

			files := 0
			for _, r := range m.Runs {
				files += len(r.Files)
			}
			logger.Info("export finished", log.Int("runs", len(m.Runs)), log.Int("files", files))
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file, .toml or .yaml (default: $HOME/.pixport/config.toml)")
	root.Flags().IntVar(&cfg.Start, "start", cfg.Start, "first cadence to export")
	root.Flags().IntVar(&cfg.End, "end", cfg.End, "last cadence to export")
	root.Flags().StringVar(&cfg.Option, "option", cfg.Option, "cadence types to export: all, short or long")
	root.Flags().StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory receiving the exported files")
	root.Flags().IntVar(&cfg.Threads, "threads", cfg.Threads, "regions and files processed in parallel")
	root.Flags().IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "cadences exported per run")
	root.Flags().StringVar(&cfg.MetadataDB, "metadata-db", cfg.MetadataDB, "sqlite metadata database")
	root.Flags().StringVar(&cfg.BlobDir, "blob-dir", cfg.BlobDir, "blob and time-series store directory")
	root.Flags().IntVar(&cfg.Quarter, "quarter", cfg.Quarter, "override the quarter keyword (0 keeps the reference value)")
	root.Flags().IntVar(&cfg.DataRelease, "data-release", cfg.DataRelease, "override the data release keyword (0 keeps the reference value)")
	root.Flags().StringVar(&cfg.Description, "description", cfg.Description, "note recorded in every history file")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "verify [output-dir]",
		Short: "Check exported files against export-manifest.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			mismatches, err := pixport.Verify(cmd.Context(), dir)
			if err != nil {
				return err
			}
			for _, m := range mismatches {
				logger.Warn("file changed since export", log.String("path", m.Path), log.String("reason", m.Reason))
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("%d files differ from the manifest", len(mismatches))
			}
			logger.Info("all files match the manifest", log.String("dir", dir))
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		logger.Error("pixport", log.Err(err))
		os.Exit(1)
	}
}
