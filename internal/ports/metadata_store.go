package ports

import (
	"context"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
)

// MetadataStore is the read-only view of the relational metadata store.
type MetadataStore interface {
	// ReferenceHeaders returns one header per original (category, cadence)
	// data file of the given cadence type within [start, end].
	ReferenceHeaders(ctx context.Context, t domain.CadenceType, start, end int) ([]domain.ReferenceHeader, error)

	// CadenceTimes returns the timestamps of the cadences in [start, end].
	CadenceTimes(ctx context.Context, t domain.CadenceType, start, end int) (domain.CadenceTimes, error)

	// CoveringCadences converts a cadence range of one type into the range of
	// the other type covering the same time span.
	CoveringCadences(ctx context.Context, from domain.CadenceType, start, end int) (int, int, error)

	// TaskLineage returns the records of the tasks and all of their ancestors.
	TaskLineage(ctx context.Context, ids []int64) ([]domain.TaskRecord, error)

	// Alerts returns the alerts raised by the tasks.
	Alerts(ctx context.Context, ids []int64) ([]domain.Alert, error)

	// ModelHistory returns the calibration-model ingests within [from, to].
	ModelHistory(ctx context.Context, from, to time.Time) ([]domain.ModelEvent, error)
}
