package ports

import (
	"context"

	"github.com/bft-labs/pixport/internal/domain"
)

// BlobStore is the read-only view of the time-series and blob store.
type BlobStore interface {
	// ReadBlob returns the named blob. Returns an error wrapping
	// domain.ErrBlobNotFound when it does not exist.
	ReadBlob(ctx context.Context, name string) ([]byte, error)

	// ReadIntSeries returns one series per id, in id order, covering
	// cadences [start, end]. Missing cadences hold fill.
	ReadIntSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill int32) ([]domain.IntSeries, error)

	// ReadFloatSeries is the float variant of ReadIntSeries.
	ReadFloatSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill float32) ([]domain.FloatSeries, error)

	// ReadEventSeries returns one series per id, in id order, holding the
	// events whose time falls within [startMJD, endMJD].
	ReadEventSeries(ctx context.Context, ids []domain.StorageID, startMJD, endMJD float64) ([]domain.EventSeries, error)
}
