package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bft-labs/pixport/internal/adapters/fsstore"
	"github.com/bft-labs/pixport/internal/adapters/sqlite"
	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/export"
	"github.com/bft-labs/pixport/internal/history"
	"github.com/bft-labs/pixport/internal/pmrf"
	"github.com/bft-labs/pixport/pkg/log"
	"github.com/bft-labs/pixport/pkg/manifest"
)

// Config contains configuration for a chunked export.
type Config struct {
	Start     int
	End       int
	Option    domain.CadenceOption
	OutputDir string
	Threads   int
	ChunkSize int

	MetadataDB string
	BlobDir    string

	Quarter     int
	DataRelease int
	Description string

	// Regions defaults to every valid detector region.
	Regions []domain.Region
	Now     func() time.Time
}

// Exporter runs one export per cadence chunk against the sqlite metadata
// store and the directory blob store, then writes the export manifest.
type Exporter struct {
	config   Config
	logger   log.Logger
	renderer history.TaskRenderer
	observer export.PhaseObserver
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRenderer replaces the lineage renderer of history files.
func WithRenderer(r history.TaskRenderer) Option {
	return func(e *Exporter) { e.renderer = r }
}

// WithPhaseObserver is notified of every phase change of every chunk.
func WithPhaseObserver(o export.PhaseObserver) Option {
	return func(e *Exporter) { e.observer = o }
}

// NewExporter creates an exporter.
func NewExporter(config Config, logger log.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	e := &Exporter{config: config, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run opens the stores, exports every chunk in order and saves the manifest.
// The first failing chunk stops the export; the manifest is written only
// when every chunk succeeded.
func (e *Exporter) Run(ctx context.Context) (manifest.Manifest, error) {
	cfg := e.config
	m := manifest.Manifest{Version: manifest.Version, Option: cfg.Option.String(), Created: cfg.Now().UTC()}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return m, fmt.Errorf("create output dir: %w", err)
	}

	meta, err := sqlite.Open(cfg.MetadataDB)
	if err != nil {
		return m, err
	}
	defer meta.Close()

	blobs, err := fsstore.Open(cfg.BlobDir, e.logger)
	if err != nil {
		return m, err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan error, 1)
	ready := make(chan struct{})
	go func() { watchDone <- blobs.Watch(watchCtx, ready) }()
	defer func() {
		stopWatch()
		if err := <-watchDone; err != nil {
			e.logger.Warn("blob watcher stopped", log.Err(err))
		}
	}()
	select {
	case <-ready:
	case err := <-watchDone:
		// Without a watcher cached blobs stay valid for the whole run.
		if err != nil {
			e.logger.Warn("blob watcher unavailable", log.Err(err))
		}
		watchDone <- nil
	case <-ctx.Done():
		return m, ctx.Err()
	}

	// One resolver and index for all chunks: mapping tables are shared.
	resolver := pmrf.NewResolver(blobs, e.logger, pmrf.DefaultCacheSize)
	index := pmrf.NewIndex(resolver)

	chunks := export.Chunks(cfg.Start, cfg.End, cfg.ChunkSize)
	var results []*export.Result
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		e.logger.Info("exporting chunk",
			log.Int("chunk", i+1),
			log.Int("chunks", len(chunks)),
			log.Int("start", c.Start),
			log.Int("end", c.End),
		)
		o, err := export.New(export.Config{
			Start:       c.Start,
			End:         c.End,
			Option:      cfg.Option,
			OutputDir:   cfg.OutputDir,
			Threads:     cfg.Threads,
			Description: cfg.Description,
			Quarter:     cfg.Quarter,
			DataRelease: cfg.DataRelease,
			Regions:     cfg.Regions,
			Now:         cfg.Now,
		}, export.Deps{
			Metadata: meta,
			Blobs:    blobs,
			Resolver: resolver,
			Index:    index,
			Renderer: e.renderer,
			Observer: e.observer,
			Logger:   e.logger,
		})
		if err != nil {
			return m, err
		}
		res, err := o.Run(ctx)
		if err != nil {
			return m, fmt.Errorf("chunk %d-%d: %w", c.Start, c.End, err)
		}
		results = append(results, res)
	}

	stats := resolver.Stats()
	e.logger.Info("mapping tables",
		log.Int("parses", stats.Parses),
		log.Int("hits", stats.Hits),
		log.Int("misses", stats.Misses),
		log.Int("indexed_pixels", index.Len()),
	)

	// History and cosmic-ray files grow across chunks, so digests are taken
	// once every chunk is done.
	for _, res := range results {
		run := manifest.Run{ID: res.RunID, Start: res.Start, End: res.End}
		for _, f := range res.Files {
			if err := run.AddFile(f.Path, string(f.Kind)); err != nil {
				return m, err
			}
		}
		m.Runs = append(m.Runs, run)
	}
	m.Relativize(cfg.OutputDir)

	if err := manifest.NewFileRepository(cfg.OutputDir).Save(ctx, m); err != nil {
		return m, fmt.Errorf("save manifest: %w", err)
	}
	return m, nil
}

// Verify checks the manifest in dir against the files on disk.
func Verify(ctx context.Context, dir string) ([]manifest.Mismatch, error) {
	repo := manifest.NewFileRepository(dir)
	m, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(m.Runs) == 0 {
		return nil, errors.New("no export manifest in " + dir)
	}
	return m.Verify(dir)
}
