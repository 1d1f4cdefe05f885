package pmrf

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/ports"
	"github.com/bft-labs/pixport/pkg/log"
)

// DefaultCacheSize bounds each cache level. A full-mission export touches
// hundreds of mapping tables, so neither level may grow without limit.
const DefaultCacheSize = 32

type idKey struct {
	table    string
	region   domain.Region
	category domain.Category
	purpose  domain.Purpose
}

// Stats reports cache behavior.
type Stats struct {
	Parses int
	Hits   int
	Misses int
}

// Resolver maps (table, region, category, purpose) to the ordered storage
// identifiers of the pixels in that region. Safe for concurrent use.
type Resolver struct {
	blobs  ports.BlobStore
	logger log.Logger

	mu     sync.Mutex
	tables *lru.Cache
	ids    *lru.Cache
	stats  Stats

	loads singleflight.Group
}

// NewResolver creates a resolver reading mapping tables from blobs.
// A non-positive size selects DefaultCacheSize.
func NewResolver(blobs ports.BlobStore, logger log.Logger, size int) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Resolver{
		blobs:  blobs,
		logger: logger,
		tables: lru.New(size),
		ids:    lru.New(size),
	}
}

// Stats returns a snapshot of the cache counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Table returns the decoded mapping table, reading and parsing it on first use.
// Concurrent first uses of the same table share one read.
func (r *Resolver) Table(ctx context.Context, name string) (*Table, error) {
	r.mu.Lock()
	if v, ok := r.tables.Get(name); ok {
		r.mu.Unlock()
		return v.(*Table), nil
	}
	r.mu.Unlock()

	v, err, _ := r.loads.Do(name, func() (interface{}, error) {
		r.mu.Lock()
		if v, ok := r.tables.Get(name); ok {
			r.mu.Unlock()
			return v, nil
		}
		r.mu.Unlock()

		data, err := r.blobs.ReadBlob(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read mapping table %s: %w", name, err)
		}
		t, err := Decode(name, data)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.tables.Add(name, t)
		r.stats.Parses++
		r.mu.Unlock()
		r.logger.Debug("mapping table loaded", log.String("table", name), log.Int("regions", len(t.subs)))
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Coordinates returns the sub-table of a region. A table without the region
// is corrupt or does not match the export and yields domain.ErrMissingSubTable.
func (r *Resolver) Coordinates(ctx context.Context, table string, region domain.Region) (*SubTable, error) {
	t, err := r.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	sub, ok := t.Sub(region)
	if !ok {
		return nil, fmt.Errorf("%w: table %s has no region %v", domain.ErrMissingSubTable, table, region)
	}
	return sub, nil
}

// Resolve returns the storage identifiers of a region's pixels for one purpose,
// in table row order. Identifiers of the four purposes are positionally aligned.
// The returned slice is shared and must not be modified.
func (r *Resolver) Resolve(ctx context.Context, table string, region domain.Region, category domain.Category, purpose domain.Purpose) ([]domain.StorageID, error) {
	key := idKey{table: table, region: region, category: category, purpose: purpose}

	r.mu.Lock()
	if v, ok := r.ids.Get(key); ok {
		r.stats.Hits++
		r.mu.Unlock()
		return v.([]domain.StorageID), nil
	}
	r.stats.Misses++
	r.mu.Unlock()

	t, err := r.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	if t.Collateral != category.IsCollateral() {
		return nil, fmt.Errorf("%w: table %s does not hold %s pixels", domain.ErrInconsistentMapping, table, category)
	}
	sub, ok := t.Sub(region)
	if !ok {
		return nil, fmt.Errorf("%w: table %s has no region %v", domain.ErrMissingSubTable, table, region)
	}

	ids := make([]domain.StorageID, sub.Len())
	for i := range ids {
		ids[i] = domain.NewStorageID(region, category, purpose, sub.A[i], sub.B[i])
	}

	r.mu.Lock()
	r.ids.Add(key, ids)
	r.mu.Unlock()
	return ids, nil
}

// CachedTables returns the number of decoded tables currently cached.
func (r *Resolver) CachedTables() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables.Len()
}
