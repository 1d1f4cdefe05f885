package sqlite

import (
	"context"

	"github.com/bft-labs/pixport/internal/domain"
)

// InsertHeader stores or replaces a reference header.
func (s *Store) InsertHeader(ctx context.Context, h domain.ReferenceHeader) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO reference_headers (
	category, cadence_type, cadence, data_set, original_file, mapping_table,
	target_table_id, background_table_id, aperture_table_id, compression_table_id,
	quarter, data_release
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Category.String(), h.Category.CadenceType().String(), h.Cadence, h.DataSet, h.OriginalFile, h.MappingTable,
		h.TargetTableID, h.BackgroundTableID, h.ApertureTableID, h.CompressionTableID,
		h.Quarter, h.DataRelease)
	if err != nil {
		return storeErr("insert reference header", err)
	}
	return nil
}

// InsertCadence stores or replaces the timestamps of one cadence.
func (s *Store) InsertCadence(ctx context.Context, t domain.CadenceType, cadence int, startMJD, midMJD, endMJD float64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO cadence_times (cadence_type, cadence, start_mjd, mid_mjd, end_mjd)
VALUES (?, ?, ?, ?, ?)`, t.String(), cadence, startMJD, midMJD, endMJD)
	if err != nil {
		return storeErr("insert cadence", err)
	}
	return nil
}

// InsertTask stores or replaces a pipeline task.
func (s *Store) InsertTask(ctx context.Context, t domain.TaskRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO tasks (id, parent_id, pipeline, module, revision, state, start_ns, end_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ParentID, t.PipelineName, t.ModuleName, t.SoftwareRevision, t.State,
		toNanos(t.StartProcessing), toNanos(t.EndProcessing))
	if err != nil {
		return storeErr("insert task", err)
	}
	return nil
}

// InsertAlert stores an alert.
func (s *Store) InsertAlert(ctx context.Context, a domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts (task_id, time_ns, severity, source, message) VALUES (?, ?, ?, ?, ?)`,
		a.TaskID, toNanos(a.Time), a.Severity, a.Source, a.Message)
	if err != nil {
		return storeErr("insert alert", err)
	}
	return nil
}

// InsertModelEvent stores a calibration-model ingest.
func (s *Store) InsertModelEvent(ctx context.Context, e domain.ModelEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO model_history (ingest_ns, model_type, revision, description) VALUES (?, ?, ?, ?)`,
		toNanos(e.IngestTime), e.ModelType, e.Revision, e.Description)
	if err != nil {
		return storeErr("insert model event", err)
	}
	return nil
}
