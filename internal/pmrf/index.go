package pmrf

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/pixport/internal/domain"
)

const maxCoordinate = 1<<16 - 1

// PackKey packs a visible pixel location into one integer:
// channel (8 bits) | background (1 bit) | row (16 bits) | column (16 bits).
func PackKey(region domain.Region, background bool, row, column int32) (uint64, bool) {
	ch := region.Channel()
	if ch == 0 || row < 0 || row > maxCoordinate || column < 0 || column > maxCoordinate {
		return 0, false
	}
	key := uint64(ch)<<33 | uint64(row)<<16 | uint64(column)
	if background {
		key |= 1 << 32
	}
	return key, true
}

// Index finds the target and aperture of a visible pixel. It is built lazily
// from every table added and holds two parallel primitive maps keyed by the
// packed location. Safe for concurrent use.
type Index struct {
	resolver *Resolver

	mu        sync.RWMutex
	seen      map[string]struct{}
	targets   map[uint64]int32
	apertures map[uint64]int32
}

// NewIndex creates an empty index loading tables through resolver.
func NewIndex(resolver *Resolver) *Index {
	return &Index{
		resolver:  resolver,
		seen:      make(map[string]struct{}),
		targets:   make(map[uint64]int32),
		apertures: make(map[uint64]int32),
	}
}

// Add indexes every region of a visible mapping table. Adding a table a second
// time is a no-op; collateral tables carry no associations and are only marked seen.
func (x *Index) Add(ctx context.Context, table string, category domain.Category) error {
	x.mu.RLock()
	_, done := x.seen[table]
	x.mu.RUnlock()
	if done {
		return nil
	}

	t, err := x.resolver.Table(ctx, table)
	if err != nil {
		return err
	}

	background := category.IsBackground()
	targets := make(map[uint64]int32)
	apertures := make(map[uint64]int32)
	if !t.Collateral {
		for _, region := range t.Regions() {
			sub := t.subs[region]
			for i := range sub.A {
				key, ok := PackKey(region, background, sub.A[i], sub.B[i])
				if !ok {
					return fmt.Errorf("%w: table %s region %v pixel (%d, %d) out of range",
						domain.ErrInconsistentMapping, table, region, sub.A[i], sub.B[i])
				}
				targets[key] = sub.TargetIDs[i]
				apertures[key] = sub.ApertureIDs[i]
			}
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, done := x.seen[table]; done {
		return nil
	}
	for k, v := range targets {
		x.targets[k] = v
		x.apertures[k] = apertures[k]
	}
	x.seen[table] = struct{}{}
	return nil
}

// Find returns the target and aperture of a pixel. Absent means the pixel
// belongs to no indexed table of that kind.
func (x *Index) Find(region domain.Region, background bool, row, column int32) (domain.TargetAperture, bool) {
	key, ok := PackKey(region, background, row, column)
	if !ok {
		return domain.TargetAperture{}, false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	tid, ok := x.targets[key]
	if !ok {
		return domain.TargetAperture{}, false
	}
	return domain.TargetAperture{TargetID: tid, ApertureID: x.apertures[key]}, true
}

// Len returns the number of indexed pixels.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.targets)
}
