// Package memstore implements the metadata and blob store ports in memory.
//
// It is used by tests and by callers that assemble stores programmatically.
// Every read is counted so callers can assert which blobs and series an
// export touched.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
)

type cadenceTime struct {
	start, mid, end float64
}

type storedInt struct {
	values  map[int]int32
	origins []int64
}

type storedFloat struct {
	values  map[int]float32
	origins []int64
}

// Store holds metadata, blobs and series in memory. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	headers []domain.ReferenceHeader
	times   map[domain.CadenceType]map[int]cadenceTime
	tasks   map[int64]domain.TaskRecord
	alerts  []domain.Alert
	models  []domain.ModelEvent

	blobs  map[string][]byte
	ints   map[domain.StorageID]*storedInt
	floats map[domain.StorageID]*storedFloat
	events map[domain.StorageID][]domain.CosmicRayEvent

	blobReads  map[string]int
	seriesReqs int
	failErr    error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		times:     make(map[domain.CadenceType]map[int]cadenceTime),
		tasks:     make(map[int64]domain.TaskRecord),
		blobs:     make(map[string][]byte),
		ints:      make(map[domain.StorageID]*storedInt),
		floats:    make(map[domain.StorageID]*storedFloat),
		events:    make(map[domain.StorageID][]domain.CosmicRayEvent),
		blobReads: make(map[string]int),
	}
}

// Fail makes every subsequent series read return err. Pass nil to clear.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// AddHeader registers a reference header.
func (s *Store) AddHeader(h domain.ReferenceHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, h)
}

// AddCadence registers the timestamps of one cadence.
func (s *Store) AddCadence(t domain.CadenceType, cadence int, startMJD, midMJD, endMJD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.times[t]
	if m == nil {
		m = make(map[int]cadenceTime)
		s.times[t] = m
	}
	m[cadence] = cadenceTime{start: startMJD, mid: midMJD, end: endMJD}
}

// AddTask registers a pipeline task.
func (s *Store) AddTask(task domain.TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// AddAlert registers an alert.
func (s *Store) AddAlert(a domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

// AddModelEvent registers a calibration-model ingest.
func (s *Store) AddModelEvent(e domain.ModelEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append(s.models, e)
}

// PutBlob stores a named blob.
func (s *Store) PutBlob(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = append([]byte(nil), data...)
}

// PutIntSeries stores raw values for consecutive cadences starting at start.
func (s *Store) PutIntSeries(id domain.StorageID, start int, values []int32, origins ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ints[id]
	if st == nil {
		st = &storedInt{values: make(map[int]int32)}
		s.ints[id] = st
	}
	for i, v := range values {
		st.values[start+i] = v
	}
	st.origins = mergeOrigins(st.origins, origins)
}

// PutFloatSeries stores calibrated or uncertainty values for consecutive cadences.
func (s *Store) PutFloatSeries(id domain.StorageID, start int, values []float32, origins ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.floats[id]
	if st == nil {
		st = &storedFloat{values: make(map[int]float32)}
		s.floats[id] = st
	}
	for i, v := range values {
		st.values[start+i] = v
	}
	st.origins = mergeOrigins(st.origins, origins)
}

// PutEvent stores a cosmic-ray event.
func (s *Store) PutEvent(e domain.CosmicRayEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := append(s.events[e.ID], e)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].MJD < evs[j].MJD })
	s.events[e.ID] = evs
}

// BlobReads returns how many times the named blob was read.
func (s *Store) BlobReads(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobReads[name]
}

// SeriesRequests returns the number of bulk series requests served.
func (s *Store) SeriesRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seriesReqs
}

func mergeOrigins(have, add []int64) []int64 {
	for _, id := range add {
		found := false
		for _, h := range have {
			if h == id {
				found = true
				break
			}
		}
		if !found {
			have = append(have, id)
		}
	}
	return have
}

// ReferenceHeaders implements ports.MetadataStore.
func (s *Store) ReferenceHeaders(ctx context.Context, t domain.CadenceType, start, end int) ([]domain.ReferenceHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReferenceHeader
	for _, h := range s.headers {
		if h.Category.CadenceType() == t && h.Cadence >= start && h.Cadence <= end {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cadence != out[j].Cadence {
			return out[i].Cadence < out[j].Cadence
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// CadenceTimes implements ports.MetadataStore.
func (s *Store) CadenceTimes(ctx context.Context, t domain.CadenceType, start, end int) (domain.CadenceTimes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct := domain.CadenceTimes{Type: t, Start: start}
	m := s.times[t]
	for c := start; c <= end; c++ {
		tm, ok := m[c]
		if !ok {
			return domain.CadenceTimes{}, fmt.Errorf("%w: no timestamps for %s cadence %d", domain.ErrStore, t, c)
		}
		ct.StartMJD = append(ct.StartMJD, tm.start)
		ct.MidMJD = append(ct.MidMJD, tm.mid)
		ct.EndMJD = append(ct.EndMJD, tm.end)
	}
	return ct, nil
}

// CoveringCadences implements ports.MetadataStore.
func (s *Store) CoveringCadences(ctx context.Context, from domain.CadenceType, start, end int) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.times[from]
	first, okFirst := src[start]
	last, okLast := src[end]
	if !okFirst || !okLast {
		return 0, 0, fmt.Errorf("%w: no timestamps for %s cadences %d-%d", domain.ErrStore, from, start, end)
	}
	to := domain.LongCadence
	if from == domain.LongCadence {
		to = domain.ShortCadence
	}
	lo, hi := -1, -1
	for c, tm := range s.times[to] {
		if tm.end < first.start || tm.start > last.end {
			continue
		}
		if lo == -1 || c < lo {
			lo = c
		}
		if hi == -1 || c > hi {
			hi = c
		}
	}
	if lo == -1 {
		return 0, 0, fmt.Errorf("%w: no %s cadences cover %s cadences %d-%d", domain.ErrStore, to, from, start, end)
	}
	return lo, hi, nil
}

// TaskLineage implements ports.MetadataStore.
func (s *Store) TaskLineage(ctx context.Context, ids []int64) ([]domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []domain.TaskRecord
	queue := append([]int64(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		task, ok := s.tasks[id]
		if !ok {
			continue
		}
		out = append(out, task)
		if task.ParentID != 0 {
			queue = append(queue, task.ParentID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Alerts implements ports.MetadataStore.
func (s *Store) Alerts(ctx context.Context, ids []int64) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Alert
	for _, a := range s.alerts {
		if want[a.TaskID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// ModelHistory implements ports.MetadataStore.
func (s *Store) ModelHistory(ctx context.Context, from, to time.Time) ([]domain.ModelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ModelEvent
	for _, e := range s.models {
		if e.IngestTime.Before(from) || e.IngestTime.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadBlob implements ports.BlobStore.
func (s *Store) ReadBlob(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobReads[name]++
	b, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, name)
	}
	return append([]byte(nil), b...), nil
}

// ReadIntSeries implements ports.BlobStore.
func (s *Store) ReadIntSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill int32) ([]domain.IntSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.seriesReqs++
	n := end - start + 1
	out := make([]domain.IntSeries, len(ids))
	for i, id := range ids {
		ser := domain.IntSeries{ID: id, Values: make([]int32, n), Gaps: make([]bool, n)}
		st := s.ints[id]
		for k := 0; k < n; k++ {
			v, ok := int32(0), false
			if st != nil {
				v, ok = st.values[start+k]
			}
			if !ok {
				v = fill
				ser.Gaps[k] = true
			}
			ser.Values[k] = v
		}
		if st != nil {
			ser.Origins = append([]int64(nil), st.origins...)
		}
		out[i] = ser
	}
	return out, nil
}

// ReadFloatSeries implements ports.BlobStore.
func (s *Store) ReadFloatSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill float32) ([]domain.FloatSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.seriesReqs++
	n := end - start + 1
	out := make([]domain.FloatSeries, len(ids))
	for i, id := range ids {
		ser := domain.FloatSeries{ID: id, Values: make([]float32, n), Gaps: make([]bool, n)}
		st := s.floats[id]
		for k := 0; k < n; k++ {
			v, ok := float32(0), false
			if st != nil {
				v, ok = st.values[start+k]
			}
			if !ok {
				v = fill
				ser.Gaps[k] = true
			}
			ser.Values[k] = v
		}
		if st != nil {
			ser.Origins = append([]int64(nil), st.origins...)
		}
		out[i] = ser
	}
	return out, nil
}

// ReadEventSeries implements ports.BlobStore.
func (s *Store) ReadEventSeries(ctx context.Context, ids []domain.StorageID, startMJD, endMJD float64) ([]domain.EventSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.seriesReqs++
	out := make([]domain.EventSeries, len(ids))
	for i, id := range ids {
		ser := domain.EventSeries{ID: id}
		for _, e := range s.events[id] {
			if e.MJD >= startMJD && e.MJD <= endMJD {
				ser.Events = append(ser.Events, e)
			}
		}
		out[i] = ser
	}
	return out, nil
}
