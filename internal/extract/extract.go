// Package extract retrieves the pixel time series of one detector region and
// applies cosmic-ray corrections to the calibrated values.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/pmrf"
	"github.com/bft-labs/pixport/internal/ports"
	"github.com/bft-labs/pixport/pkg/log"
)

// Resolver is the part of pmrf.Resolver the extractor needs.
type Resolver interface {
	Resolve(ctx context.Context, table string, region domain.Region, category domain.Category, purpose domain.Purpose) ([]domain.StorageID, error)
	Coordinates(ctx context.Context, table string, region domain.Region) (*pmrf.SubTable, error)
}

// TableRequest names one mapping table and the category it is read as.
type TableRequest struct {
	Table    string
	Category domain.Category
}

// Request describes the pixels to extract for one region.
type Request struct {
	Region domain.Region
	Times  domain.CadenceTimes
	Tables []TableRequest
}

// Pixels holds the positionally aligned identifiers of one table request.
type Pixels struct {
	TableRequest
	Coords      *pmrf.SubTable
	Raw         []domain.StorageID
	Calibrated  []domain.StorageID
	Uncertainty []domain.StorageID
	CosmicRay   []domain.StorageID
}

// Exempt reports whether pixel i is never cosmic-ray corrected.
func (p *Pixels) Exempt(i int) bool {
	return p.Category.IsCollateral() && domain.CollateralType(p.Coords.A[i]).CosmicRayExempt()
}

// Bundle is the extraction result for one region. Calibrated values have
// been corrected.
type Bundle struct {
	Region     domain.Region
	Times      domain.CadenceTimes
	Tables     []*Pixels
	Raw        map[domain.StorageID]domain.IntSeries
	Float      map[domain.StorageID]domain.FloatSeries
	CosmicRays map[domain.StorageID]domain.EventSeries
	Corrected  int
}

// Pixels returns the identifiers of a table request.
func (b *Bundle) Pixels(req TableRequest) (*Pixels, bool) {
	for _, p := range b.Tables {
		if p.TableRequest == req {
			return p, true
		}
	}
	return nil, false
}

// TaskIDs returns the tasks that produced any series of a table request.
func (b *Bundle) TaskIDs(p *Pixels) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(ids []int64) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	for i := range p.Raw {
		add(b.Raw[p.Raw[i]].Origins)
		add(b.Float[p.Calibrated[i]].Origins)
		add(b.Float[p.Uncertainty[i]].Origins)
		if s, ok := b.CosmicRays[p.CosmicRay[i]]; ok {
			add(s.TaskIDs())
		}
	}
	return out
}

// Extractor fetches and corrects the pixels of one region at a time.
// Safe for concurrent use by multiple regions.
type Extractor struct {
	resolver Resolver
	blobs    ports.BlobStore
	logger   log.Logger
}

// New creates an extractor.
func New(resolver Resolver, blobs ports.BlobStore, logger log.Logger) *Extractor {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Extractor{resolver: resolver, blobs: blobs, logger: logger}
}

// Extract collects the identifiers of every requested table, bulk-fetches
// raw, calibrated+uncertainty and cosmic-ray series, then subtracts each
// cosmic-ray event from the calibrated value of the cadence it belongs to.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Bundle, error) {
	started := time.Now()
	b := &Bundle{Region: req.Region, Times: req.Times}

	var rawIDs, floatIDs, crIDs idSet
	seenReq := make(map[TableRequest]bool)
	for _, tr := range req.Tables {
		if seenReq[tr] {
			continue
		}
		seenReq[tr] = true
		p, err := e.resolve(ctx, req.Region, tr)
		if err != nil {
			return nil, err
		}
		b.Tables = append(b.Tables, p)
		for i := range p.Raw {
			rawIDs.add(p.Raw[i])
			floatIDs.add(p.Calibrated[i])
			floatIDs.add(p.Uncertainty[i])
			if !p.Exempt(i) {
				crIDs.add(p.CosmicRay[i])
			}
		}
	}

	n := req.Times.Len()
	if n == 0 {
		return nil, fmt.Errorf("region %v: empty cadence range", req.Region)
	}
	start, end := req.Times.Start, req.Times.End()

	raw, err := e.blobs.ReadIntSeries(ctx, rawIDs.ids, start, end, domain.MissingRaw)
	if err != nil {
		return nil, fmt.Errorf("region %v: read raw series: %w", req.Region, err)
	}
	b.Raw = make(map[domain.StorageID]domain.IntSeries, len(raw))
	for _, s := range raw {
		if len(s.Values) != n {
			return nil, fmt.Errorf("%w: raw series %s has %d cadences, want %d", domain.ErrStore, s.ID, len(s.Values), n)
		}
		b.Raw[s.ID] = s
	}

	floats, err := e.blobs.ReadFloatSeries(ctx, floatIDs.ids, start, end, domain.MissingCal)
	if err != nil {
		return nil, fmt.Errorf("region %v: read calibrated series: %w", req.Region, err)
	}
	b.Float = make(map[domain.StorageID]domain.FloatSeries, len(floats))
	for _, s := range floats {
		if len(s.Values) != n {
			return nil, fmt.Errorf("%w: series %s has %d cadences, want %d", domain.ErrStore, s.ID, len(s.Values), n)
		}
		b.Float[s.ID] = s
	}

	from, to := req.Times.Span()
	events, err := e.blobs.ReadEventSeries(ctx, crIDs.ids, from, to)
	if err != nil {
		return nil, fmt.Errorf("region %v: read cosmic-ray series: %w", req.Region, err)
	}
	b.CosmicRays = make(map[domain.StorageID]domain.EventSeries, len(events))
	for _, s := range events {
		b.CosmicRays[s.ID] = s
	}

	for _, id := range append(append([]domain.StorageID(nil), rawIDs.ids...), floatIDs.ids...) {
		_, okRaw := b.Raw[id]
		_, okFloat := b.Float[id]
		if !okRaw && !okFloat {
			return nil, fmt.Errorf("%w: store returned no series for %s", domain.ErrStore, id)
		}
	}

	if err := b.correct(); err != nil {
		return nil, fmt.Errorf("region %v: %w", req.Region, err)
	}

	e.logger.Debug("region extracted",
		log.Int("module", req.Region.Module),
		log.Int("output", req.Region.Output),
		log.Int("raw_series", len(rawIDs.ids)),
		log.Int("cosmic_ray_series", len(crIDs.ids)),
		log.Int("corrections", b.Corrected),
		log.Duration("elapsed", time.Since(started)),
	)
	return b, nil
}

func (e *Extractor) resolve(ctx context.Context, region domain.Region, tr TableRequest) (*Pixels, error) {
	coords, err := e.resolver.Coordinates(ctx, tr.Table, region)
	if err != nil {
		return nil, err
	}
	p := &Pixels{TableRequest: tr, Coords: coords}
	targets := []*[]domain.StorageID{&p.Raw, &p.Calibrated, &p.Uncertainty, &p.CosmicRay}
	for i, purpose := range domain.Purposes {
		ids, err := e.resolver.Resolve(ctx, tr.Table, region, tr.Category, purpose)
		if err != nil {
			return nil, err
		}
		*targets[i] = ids
	}
	if len(p.Raw) != coords.Len() || len(p.Calibrated) != len(p.Raw) || len(p.Uncertainty) != len(p.Raw) {
		return nil, fmt.Errorf("%w: table %s region %v resolved %d raw, %d calibrated, %d uncertainty ids for %d pixels",
			domain.ErrInconsistentMapping, tr.Table, region, len(p.Raw), len(p.Calibrated), len(p.Uncertainty), coords.Len())
	}
	if len(p.CosmicRay) != len(p.Calibrated) {
		return nil, fmt.Errorf("%w: table %s region %v resolved %d pixel ids but %d cosmic-ray ids",
			domain.ErrInconsistentMapping, tr.Table, region, len(p.Calibrated), len(p.CosmicRay))
	}
	return p, nil
}

// correct subtracts, in single precision, every event whose time is exactly a
// cadence mid-time from the calibrated value of that cadence. Uncertainty and
// exempt series are left alone.
func (b *Bundle) correct() error {
	done := make(map[domain.StorageID]bool)
	for _, p := range b.Tables {
		if len(p.CosmicRay) != len(p.Calibrated) {
			return fmt.Errorf("%w: %d pixel ids but %d cosmic-ray ids", domain.ErrInconsistentMapping, len(p.Calibrated), len(p.CosmicRay))
		}
		for i, calID := range p.Calibrated {
			if p.Exempt(i) || done[calID] {
				continue
			}
			done[calID] = true
			events, ok := b.CosmicRays[p.CosmicRay[i]]
			if !ok {
				continue
			}
			values := b.Float[calID].Values
			for _, ev := range events.Events {
				k, ok := b.Times.Index(ev.MJD)
				if !ok {
					continue
				}
				values[k] -= ev.Value
				b.Corrected++
			}
		}
	}
	return nil
}

type idSet struct {
	seen map[domain.StorageID]struct{}
	ids  []domain.StorageID
}

func (s *idSet) add(id domain.StorageID) {
	if s.seen == nil {
		s.seen = make(map[domain.StorageID]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}
