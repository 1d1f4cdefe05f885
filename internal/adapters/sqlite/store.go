// Package sqlite implements the metadata store port on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/pixport/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS reference_headers (
	category TEXT NOT NULL,
	cadence_type TEXT NOT NULL,
	cadence INTEGER NOT NULL,
	data_set TEXT NOT NULL,
	original_file TEXT NOT NULL DEFAULT '',
	mapping_table TEXT NOT NULL,
	target_table_id INTEGER NOT NULL DEFAULT 0,
	background_table_id INTEGER NOT NULL DEFAULT 0,
	aperture_table_id INTEGER NOT NULL DEFAULT 0,
	compression_table_id INTEGER NOT NULL DEFAULT 0,
	quarter INTEGER NOT NULL DEFAULT 0,
	data_release INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (category, cadence)
);

CREATE INDEX IF NOT EXISTS idx_reference_headers_type_cadence ON reference_headers(cadence_type, cadence);

CREATE TABLE IF NOT EXISTS cadence_times (
	cadence_type TEXT NOT NULL,
	cadence INTEGER NOT NULL,
	start_mjd REAL NOT NULL,
	mid_mjd REAL NOT NULL,
	end_mjd REAL NOT NULL,
	PRIMARY KEY (cadence_type, cadence)
);

CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY,
	parent_id INTEGER NOT NULL DEFAULT 0,
	pipeline TEXT NOT NULL DEFAULT '',
	module TEXT NOT NULL DEFAULT '',
	revision TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	start_ns INTEGER NOT NULL DEFAULT 0,
	end_ns INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alerts (
	task_id INTEGER NOT NULL,
	time_ns INTEGER NOT NULL,
	severity TEXT NOT NULL,
	source TEXT NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_task_time ON alerts(task_id, time_ns);

CREATE TABLE IF NOT EXISTS model_history (
	ingest_ns INTEGER NOT NULL,
	model_type TEXT NOT NULL,
	revision INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_model_history_ingest ON model_history(ingest_ns, model_type);
`

// Store is a SQLite metadata store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir metadata dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metadata schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ReferenceHeaders implements ports.MetadataStore.
func (s *Store) ReferenceHeaders(ctx context.Context, t domain.CadenceType, start, end int) ([]domain.ReferenceHeader, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT category, cadence, data_set, original_file, mapping_table,
       target_table_id, background_table_id, aperture_table_id, compression_table_id,
       quarter, data_release
FROM reference_headers
WHERE cadence_type = ? AND cadence BETWEEN ? AND ?`, t.String(), start, end)
	if err != nil {
		return nil, storeErr("reference headers", err)
	}
	defer rows.Close()

	var out []domain.ReferenceHeader
	for rows.Next() {
		var (
			h   domain.ReferenceHeader
			cat string
		)
		if err := rows.Scan(&cat, &h.Cadence, &h.DataSet, &h.OriginalFile, &h.MappingTable,
			&h.TargetTableID, &h.BackgroundTableID, &h.ApertureTableID, &h.CompressionTableID,
			&h.Quarter, &h.DataRelease); err != nil {
			return nil, storeErr("scan reference header", err)
		}
		if h.Category, err = domain.ParseCategory(cat); err != nil {
			return nil, storeErr("reference header", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("reference headers", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cadence != out[j].Cadence {
			return out[i].Cadence < out[j].Cadence
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// CadenceTimes implements ports.MetadataStore. Every cadence of the range
// must be present.
func (s *Store) CadenceTimes(ctx context.Context, t domain.CadenceType, start, end int) (domain.CadenceTimes, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT cadence, start_mjd, mid_mjd, end_mjd
FROM cadence_times
WHERE cadence_type = ? AND cadence BETWEEN ? AND ?
ORDER BY cadence`, t.String(), start, end)
	if err != nil {
		return domain.CadenceTimes{}, storeErr("cadence times", err)
	}
	defer rows.Close()

	ct := domain.CadenceTimes{Type: t, Start: start}
	next := start
	for rows.Next() {
		var (
			cadence         int
			first, mid, lst float64
		)
		if err := rows.Scan(&cadence, &first, &mid, &lst); err != nil {
			return domain.CadenceTimes{}, storeErr("scan cadence time", err)
		}
		if cadence != next {
			return domain.CadenceTimes{}, fmt.Errorf("%w: no timestamps for %s cadence %d", domain.ErrStore, t, next)
		}
		next++
		ct.StartMJD = append(ct.StartMJD, first)
		ct.MidMJD = append(ct.MidMJD, mid)
		ct.EndMJD = append(ct.EndMJD, lst)
	}
	if err := rows.Err(); err != nil {
		return domain.CadenceTimes{}, storeErr("cadence times", err)
	}
	if next != end+1 {
		return domain.CadenceTimes{}, fmt.Errorf("%w: no timestamps for %s cadence %d", domain.ErrStore, t, next)
	}
	return ct, nil
}

// CoveringCadences implements ports.MetadataStore.
func (s *Store) CoveringCadences(ctx context.Context, from domain.CadenceType, start, end int) (int, int, error) {
	to := domain.LongCadence
	if from == domain.LongCadence {
		to = domain.ShortCadence
	}
	var lo, hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT MIN(c.cadence), MAX(c.cadence)
FROM cadence_times c,
     (SELECT start_mjd FROM cadence_times WHERE cadence_type = ? AND cadence = ?) f,
     (SELECT end_mjd FROM cadence_times WHERE cadence_type = ? AND cadence = ?) l
WHERE c.cadence_type = ? AND c.end_mjd >= f.start_mjd AND c.start_mjd <= l.end_mjd`,
		from.String(), start, from.String(), end, to.String()).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, storeErr("covering cadences", err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, fmt.Errorf("%w: no %s cadences cover %s cadences %d-%d", domain.ErrStore, to, from, start, end)
	}
	return int(lo.Int64), int(hi.Int64), nil
}

// TaskLineage implements ports.MetadataStore.
func (s *Store) TaskLineage(ctx context.Context, ids []int64) ([]domain.TaskRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
WITH RECURSIVE lineage(id) AS (
	SELECT id FROM tasks WHERE id IN (`+placeholders(len(ids))+`)
	UNION
	SELECT t.parent_id FROM tasks t JOIN lineage l ON t.id = l.id WHERE t.parent_id != 0
)
SELECT id, parent_id, pipeline, module, revision, state, start_ns, end_ns
FROM tasks WHERE id IN (SELECT id FROM lineage)
ORDER BY id`, int64Args(ids)...)
	if err != nil {
		return nil, storeErr("task lineage", err)
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		var (
			t          domain.TaskRecord
			startNanos int64
			endNanos   int64
		)
		if err := rows.Scan(&t.ID, &t.ParentID, &t.PipelineName, &t.ModuleName, &t.SoftwareRevision, &t.State, &startNanos, &endNanos); err != nil {
			return nil, storeErr("scan task", err)
		}
		t.StartProcessing, t.EndProcessing = fromNanos(startNanos), fromNanos(endNanos)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("task lineage", err)
	}
	return out, nil
}

// Alerts implements ports.MetadataStore.
func (s *Store) Alerts(ctx context.Context, ids []int64) ([]domain.Alert, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, time_ns, severity, source, message
FROM alerts WHERE task_id IN (`+placeholders(len(ids))+`)
ORDER BY task_id, time_ns`, int64Args(ids)...)
	if err != nil {
		return nil, storeErr("alerts", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a  domain.Alert
			ns int64
		)
		if err := rows.Scan(&a.TaskID, &ns, &a.Severity, &a.Source, &a.Message); err != nil {
			return nil, storeErr("scan alert", err)
		}
		a.Time = fromNanos(ns)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("alerts", err)
	}
	return out, nil
}

// ModelHistory implements ports.MetadataStore.
func (s *Store) ModelHistory(ctx context.Context, from, to time.Time) ([]domain.ModelEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ingest_ns, model_type, revision, description
FROM model_history WHERE ingest_ns BETWEEN ? AND ?
ORDER BY ingest_ns, model_type`, toNanos(from), toNanos(to))
	if err != nil {
		return nil, storeErr("model history", err)
	}
	defer rows.Close()

	var out []domain.ModelEvent
	for rows.Next() {
		var (
			e  domain.ModelEvent
			ns int64
		)
		if err := rows.Scan(&ns, &e.ModelType, &e.Revision, &e.Description); err != nil {
			return nil, storeErr("scan model event", err)
		}
		e.IngestTime = fromNanos(ns)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("model history", err)
	}
	return out, nil
}
