// Package export runs a pixel export: it places one output file per reference
// header, extracts and writes every detector region in parallel, patches the
// region headers once row counts are known, and closes the pixel, cosmic-ray
// and history files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bft-labs/pixport/internal/crct"
	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/extract"
	"github.com/bft-labs/pixport/internal/history"
	"github.com/bft-labs/pixport/internal/pmrf"
	"github.com/bft-labs/pixport/internal/ports"
	"github.com/bft-labs/pixport/internal/workpool"
	"github.com/bft-labs/pixport/pkg/log"
)

// Config is the immutable configuration of one run. Start and End are
// long-cadence numbers unless Option is CadenceShortOnly.
type Config struct {
	Start       int
	End         int
	Option      domain.CadenceOption
	OutputDir   string
	Threads     int
	Description string

	// Quarter and DataRelease override the reference header values when positive.
	Quarter     int
	DataRelease int

	// Regions defaults to every valid detector region.
	Regions []domain.Region
	// RunID defaults to a random UUID.
	RunID string
	Now   func() time.Time
}

// Deps are the collaborators of a run. Resolver and Index are created when nil.
type Deps struct {
	Metadata ports.MetadataStore
	Blobs    ports.BlobStore
	Resolver *pmrf.Resolver
	Index    *pmrf.Index
	Renderer history.TaskRenderer
	Observer PhaseObserver
	Logger   log.Logger
}

// FileKind classifies a produced file.
type FileKind string

const (
	KindPixels    FileKind = "pixels"
	KindCosmicRay FileKind = "cosmic-ray"
	KindHistory   FileKind = "history"
)

// FileSummary describes one produced file.
type FileSummary struct {
	Path string
	Kind FileKind
	Size int64
	Rows int
}

// Result summarizes a completed run.
type Result struct {
	RunID  string
	Start  int
	End    int
	Option domain.CadenceOption
	Files  []FileSummary
}

type plan struct {
	times  domain.CadenceTimes
	files  []*OutputFileInfo
	tables []extract.TableRequest
}

// Orchestrator runs one export. It is not reusable.
type Orchestrator struct {
	cfg       Config
	metadata  ports.MetadataStore
	blobs     ports.BlobStore
	resolver  *pmrf.Resolver
	index     *pmrf.Index
	extractor *extract.Extractor
	logger    log.Logger
	phase     *PhaseMachine

	registry *Registry
	writers  map[string]*crct.Writer
	history  *history.Registry
	plans    map[domain.CadenceType]*plan
}

// New validates cfg and creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.End < cfg.Start {
		return nil, fmt.Errorf("%w: end cadence %d before start cadence %d", domain.ErrInvalidConfig, cfg.End, cfg.Start)
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("%w: output directory is required", domain.ErrInvalidConfig)
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = domain.AllRegions()
	}
	for _, r := range cfg.Regions {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
	}
	// Canonical region order fixes the table order of every pixel file.
	cfg.Regions = slices.Clone(cfg.Regions)
	slices.SortFunc(cfg.Regions, func(a, b domain.Region) int { return a.Channel() - b.Channel() })
	for i := 1; i < len(cfg.Regions); i++ {
		if cfg.Regions[i] == cfg.Regions[i-1] {
			return nil, fmt.Errorf("%w: region %v listed twice", domain.ErrInvalidConfig, cfg.Regions[i])
		}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Description == "" {
		cfg.Description = fmt.Sprintf("pixel export of cadences %d-%d (%s)", cfg.Start, cfg.End, cfg.Option)
	}
	if deps.Metadata == nil || deps.Blobs == nil {
		return nil, errors.New("export: metadata and blob stores are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	logger = logger.With(log.String("run_id", cfg.RunID))

	resolver := deps.Resolver
	if resolver == nil {
		resolver = pmrf.NewResolver(deps.Blobs, logger, pmrf.DefaultCacheSize)
	}
	index := deps.Index
	if index == nil {
		index = pmrf.NewIndex(resolver)
	}

	return &Orchestrator{
		cfg:       cfg,
		metadata:  deps.Metadata,
		blobs:     deps.Blobs,
		resolver:  resolver,
		index:     index,
		extractor: extract.New(resolver, deps.Blobs, logger),
		logger:    logger,
		phase:     NewPhaseMachine(logger, deps.Observer),
		registry:  NewRegistry(),
		writers:   make(map[string]*crct.Writer),
		history: history.NewRegistry(history.Config{
			Metadata: deps.Metadata,
			Blobs:    deps.Blobs,
			Renderer: deps.Renderer,
			RunID:    cfg.RunID,
			Now:      cfg.Now,
			Logger:   logger,
		}),
		plans: make(map[domain.CadenceType]*plan),
	}, nil
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase { return o.phase.Phase() }

// Registry returns the output files of the run.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Run executes every phase. The first error aborts the run; partially
// written files are left in place.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.phase.Phase() != PhaseInit {
		return nil, fmt.Errorf("%w: run already started", domain.ErrInvalidTransition)
	}
	started := time.Now()
	o.logger.Info("export starting",
		log.Int("start", o.cfg.Start),
		log.Int("end", o.cfg.End),
		log.String("option", o.cfg.Option.String()),
		log.String("output_dir", o.cfg.OutputDir),
		log.Int("threads", o.cfg.Threads),
		log.Int("regions", len(o.cfg.Regions)),
	)

	res, err := o.run(ctx)
	if err != nil {
		o.abort()
		_ = o.phase.TransitionTo(PhaseFailed, err.Error())
		return nil, err
	}
	o.logger.Info("export complete",
		log.Int("files", len(res.Files)),
		log.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	if err := o.placeHeaders(ctx); err != nil {
		return nil, err
	}
	if err := o.phase.TransitionTo(PhaseHeadersPlaced, fmt.Sprintf("%d output files placed", o.registry.Len())); err != nil {
		return nil, err
	}

	if err := workpool.Run(ctx, o.cfg.Threads, o.cfg.Regions, o.processRegion); err != nil {
		return nil, err
	}
	if err := o.phase.TransitionTo(PhaseRegionsProcessed, fmt.Sprintf("%d regions written", len(o.cfg.Regions))); err != nil {
		return nil, err
	}

	err := workpool.Run(ctx, o.cfg.Threads, o.registry.Files(), func(ctx context.Context, f *OutputFileInfo) error {
		return f.Patch()
	})
	if err != nil {
		return nil, err
	}
	if err := o.phase.TransitionTo(PhaseHeadersPatched, "region headers patched"); err != nil {
		return nil, err
	}

	res, err := o.closeAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.phase.TransitionTo(PhaseClosed, "files closed"); err != nil {
		return nil, err
	}
	return res, nil
}

// cadenceRanges returns the cadence range of each exported type, plus the
// long-cadence range used to name history files.
func (o *Orchestrator) cadenceRanges(ctx context.Context) (map[domain.CadenceType]Range, Range, error) {
	ranges := make(map[domain.CadenceType]Range)
	cfgRange := Range{Start: o.cfg.Start, End: o.cfg.End}

	if o.cfg.Option == domain.CadenceShortOnly {
		ranges[domain.ShortCadence] = cfgRange
		lo, hi, err := o.metadata.CoveringCadences(ctx, domain.ShortCadence, cfgRange.Start, cfgRange.End)
		if err != nil {
			return nil, Range{}, fmt.Errorf("covering long cadences: %w", err)
		}
		return ranges, Range{Start: lo, End: hi}, nil
	}

	ranges[domain.LongCadence] = cfgRange
	if o.cfg.Option.Includes(domain.ShortCadence) {
		lo, hi, err := o.metadata.CoveringCadences(ctx, domain.LongCadence, cfgRange.Start, cfgRange.End)
		if err != nil {
			return nil, Range{}, fmt.Errorf("covering short cadences: %w", err)
		}
		ranges[domain.ShortCadence] = Range{Start: lo, End: hi}
	}
	return ranges, cfgRange, nil
}

func (o *Orchestrator) placeHeaders(ctx context.Context) error {
	ranges, longRange, err := o.cadenceRanges(ctx)
	if err != nil {
		return err
	}

	headers := make(map[domain.CadenceType][]domain.ReferenceHeader)
	for _, t := range []domain.CadenceType{domain.LongCadence, domain.ShortCadence} {
		r, ok := ranges[t]
		if !ok {
			continue
		}
		hs, err := o.metadata.ReferenceHeaders(ctx, t, r.Start, r.End)
		if err != nil {
			return fmt.Errorf("%s reference headers: %w", t, err)
		}
		times, err := o.metadata.CadenceTimes(ctx, t, r.Start, r.End)
		if err != nil {
			return fmt.Errorf("%s cadence times: %w", t, err)
		}
		headers[t] = hs
		o.plans[t] = &plan{times: times}
	}

	// Short-cadence files share the history file of the long-cadence data
	// set that covers them.
	var longTimes domain.CadenceTimes
	longSets := make(map[int]string)
	if _, ok := ranges[domain.ShortCadence]; ok {
		longHeaders, ok := headers[domain.LongCadence]
		if ok {
			longTimes = o.plans[domain.LongCadence].times
		} else {
			if longHeaders, err = o.metadata.ReferenceHeaders(ctx, domain.LongCadence, longRange.Start, longRange.End); err != nil {
				return fmt.Errorf("long reference headers: %w", err)
			}
			if longTimes, err = o.metadata.CadenceTimes(ctx, domain.LongCadence, longRange.Start, longRange.End); err != nil {
				return fmt.Errorf("long cadence times: %w", err)
			}
		}
		for _, h := range longHeaders {
			longSets[h.Cadence] = h.DataSet
		}
	}

	created := o.cfg.Now()
	for _, t := range []domain.CadenceType{domain.LongCadence, domain.ShortCadence} {
		p, ok := o.plans[t]
		if !ok {
			continue
		}
		seenTables := make(map[extract.TableRequest]bool)
		for _, h := range headers[t] {
			if _, ok := p.times.Mid(h.Cadence); !ok {
				return fmt.Errorf("%s: cadence %d outside %s range %d-%d", h.FileName(), h.Cadence, t, p.times.Start, p.times.End())
			}
			if o.cfg.Quarter > 0 {
				h.Quarter = o.cfg.Quarter
			}
			if o.cfg.DataRelease > 0 {
				h.DataRelease = o.cfg.DataRelease
			}
			historyName := domain.HistoryFileName(h.DataSet)
			if t == domain.ShortCadence {
				if name, ok := coveringDataSet(h.Cadence, p.times, longTimes, longSets); ok {
					historyName = domain.HistoryFileName(name)
				}
			}

			f, err := CreateOutputFile(o.cfg.OutputDir, h, historyName, o.cfg.Regions, created)
			if err != nil {
				return err
			}
			o.registry.Add(f)
			p.files = append(p.files, f)

			crName := h.CosmicRayFileName()
			w, ok := o.writers[crName]
			if !ok {
				w = crct.NewWriter(filepath.Join(o.cfg.OutputDir, crName), h)
				o.writers[crName] = w
			}
			w.Register(crct.Key{Category: h.Category, Cadence: h.Cadence})
			o.history.Ledger(historyName)

			tr := extract.TableRequest{Table: h.MappingTable, Category: h.Category}
			if !seenTables[tr] {
				seenTables[tr] = true
				p.tables = append(p.tables, tr)
			}
			if !h.Category.IsCollateral() {
				if err := o.index.Add(ctx, h.MappingTable, h.Category); err != nil {
					return fmt.Errorf("index %s: %w", h.MappingTable, err)
				}
			}
			o.logger.Debug("output file placed",
				log.String("file", f.Path()),
				log.String("history", historyName),
			)
		}
	}
	if o.registry.Len() == 0 {
		o.logger.Warn("no reference headers in cadence range")
	}
	return nil
}

func coveringDataSet(cadence int, shortTimes, longTimes domain.CadenceTimes, longSets map[int]string) (string, bool) {
	mid, ok := shortTimes.Mid(cadence)
	if !ok {
		return "", false
	}
	i, ok := longTimes.Covering(mid)
	if !ok {
		return "", false
	}
	name, ok := longSets[longTimes.Start+i]
	return name, ok
}

func (o *Orchestrator) processRegion(ctx context.Context, region domain.Region) error {
	started := time.Now()
	rows := 0
	for _, t := range []domain.CadenceType{domain.LongCadence, domain.ShortCadence} {
		p, ok := o.plans[t]
		if !ok || len(p.files) == 0 {
			continue
		}
		b, err := o.extractor.Extract(ctx, extract.Request{Region: region, Times: p.times, Tables: p.tables})
		if err != nil {
			return err
		}
		for _, f := range p.files {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := o.writeRegion(f, region, b)
			if err != nil {
				return err
			}
			rows += n
		}
	}
	o.logger.Info("region processed",
		log.Int("module", region.Module),
		log.Int("output", region.Output),
		log.Int("rows", rows),
		log.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// writeRegion writes the pixel rows, cosmic-ray records and contributing
// tasks of region for one file.
func (o *Orchestrator) writeRegion(f *OutputFileInfo, region domain.Region, b *extract.Bundle) (int, error) {
	h := f.Header
	px, ok := b.Pixels(extract.TableRequest{Table: h.MappingTable, Category: h.Category})
	if !ok {
		return 0, fmt.Errorf("%s region %v: no pixels extracted for table %s", h.FileName(), region, h.MappingTable)
	}
	k := h.Cadence - b.Times.Start

	raw := make([]int32, len(px.Raw))
	cal := make([]float32, len(px.Raw))
	unc := make([]float32, len(px.Raw))
	for i := range px.Raw {
		raw[i] = b.Raw[px.Raw[i]].Values[k]
		cal[i] = b.Float[px.Calibrated[i]].Values[k]
		unc[i] = b.Float[px.Uncertainty[i]].Values[k]
	}
	if err := f.AppendRegion(region, raw, cal, unc); err != nil {
		return 0, err
	}

	var pixels []crct.PixelEvents
	for i := range px.CosmicRay {
		if px.Exempt(i) {
			continue
		}
		s, ok := b.CosmicRays[px.CosmicRay[i]]
		if !ok || len(s.Events) == 0 {
			continue
		}
		pixels = append(pixels, crct.PixelEvents{A: px.Coords.A[i], B: px.Coords.B[i], Events: s.Events})
	}
	mjd := b.Times.MidMJD[k]
	key := crct.Key{Category: h.Category, Cadence: h.Cadence}
	w := o.writers[h.CosmicRayFileName()]
	var err error
	switch crct.LayoutFor(h.Category) {
	case crct.VisibleLayout:
		err = w.AddVisible(key, region, crct.VisibleRecords(o.index, region, h.Category.IsBackground(), pixels, mjd)...)
	case crct.CollateralLayout:
		err = w.AddCollateral(key, region, crct.CollateralRecords(pixels, mjd)...)
	}
	if err != nil {
		return 0, err
	}

	o.history.Ledger(f.History).AddTaskID(b.TaskIDs(px)...)
	return len(raw), nil
}

func (o *Orchestrator) closeAll(ctx context.Context) (*Result, error) {
	res := &Result{RunID: o.cfg.RunID, Start: o.cfg.Start, End: o.cfg.End, Option: o.cfg.Option}

	for _, f := range o.registry.Files() {
		size, err := f.Close()
		if err != nil {
			return nil, err
		}
		o.logger.Info("output file closed",
			log.String("file", f.Path()),
			log.String("size", humanize.Bytes(uint64(size))),
			log.Int("rows", f.Rows()),
		)
		res.Files = append(res.Files, FileSummary{Path: f.Path(), Kind: KindPixels, Size: size, Rows: f.Rows()})
	}

	names := make([]string, 0, len(o.writers))
	for n := range o.writers {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w := o.writers[n]
		if err := w.Close(); err != nil {
			return nil, err
		}
		size := fileSize(w.Path())
		o.logger.Info("cosmic-ray file closed",
			log.String("file", w.Path()),
			log.String("size", humanize.Bytes(uint64(size))),
		)
		res.Files = append(res.Files, FileSummary{Path: w.Path(), Kind: KindCosmicRay, Size: size})
	}

	if err := o.history.WriteAll(ctx, o.cfg.OutputDir, o.cfg.Description); err != nil {
		return nil, err
	}
	for _, n := range o.history.Names() {
		path := filepath.Join(o.cfg.OutputDir, n)
		res.Files = append(res.Files, FileSummary{Path: path, Kind: KindHistory, Size: fileSize(path)})
	}
	return res, nil
}

// abort releases the file handles of a failed run.
func (o *Orchestrator) abort() {
	for _, f := range o.registry.Files() {
		if _, err := f.Close(); err != nil {
			o.logger.Warn("close after failure", log.String("file", f.Path()), log.Err(err))
		}
	}
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
