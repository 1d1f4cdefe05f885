// Package fsstore implements the blob store port on a directory tree.
//
// Layout under the root directory:
//
//	blobs/<name>[.zst|.lz4]   reference blobs, optionally compressed
//	series/<id>.cbor          raw, calibrated and uncertainty series
//	events/<id>.cbor          cosmic-ray event series
//
// Names and identifiers are path-escaped. Decoded blobs are cached until
// Invalidate is called or Watch observes a change.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/pkg/log"
)

const (
	blobsDir  = "blobs"
	seriesDir = "series"
	eventsDir = "events"

	// DefaultBlobCacheSize bounds the decoded-blob cache.
	DefaultBlobCacheSize = 64
)

// lookup order when reading a blob
var compressions = []Compression{CompressionZstd, CompressionLZ4, CompressionNone}

// Store is a directory-backed blob store. Safe for concurrent use.
type Store struct {
	root   string
	logger log.Logger

	mu    sync.Mutex
	blobs *lru.Cache
}

// Open opens the store rooted at root, creating its directories.
func Open(root string, logger log.Logger) (*Store, error) {
	for _, d := range []string{blobsDir, seriesDir, eventsDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create blob store: %w", err)
		}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Store{root: root, logger: logger, blobs: lru.New(DefaultBlobCacheSize)}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func escape(name string) string { return url.PathEscape(name) }

func (s *Store) blobPath(name string, c Compression) string {
	return filepath.Join(s.root, blobsDir, escape(name)+c.ext())
}

func (s *Store) seriesPath(id domain.StorageID) string {
	return filepath.Join(s.root, seriesDir, escape(string(id))+".cbor")
}

func (s *Store) eventsPath(id domain.StorageID) string {
	return filepath.Join(s.root, eventsDir, escape(string(id))+".cbor")
}

// PutBlob stores a blob, replacing any copy under another compression.
func (s *Store) PutBlob(name string, data []byte, c Compression) error {
	enc, err := compress(data, c)
	if err != nil {
		return fmt.Errorf("blob %s: %w", name, err)
	}
	for _, other := range compressions {
		if other == c {
			continue
		}
		if err := os.Remove(s.blobPath(name, other)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blob %s: %w", name, err)
		}
	}
	if err := writeFileAtomic(s.blobPath(name, c), enc); err != nil {
		return fmt.Errorf("blob %s: %w", name, err)
	}
	s.Invalidate(name)
	return nil
}

// Invalidate drops the cached copy of a blob.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs.Remove(name)
}

// ReadBlob implements ports.BlobStore.
func (s *Store) ReadBlob(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	if v, ok := s.blobs.Get(name); ok {
		s.mu.Unlock()
		return append([]byte(nil), v.([]byte)...), nil
	}
	s.mu.Unlock()

	for _, c := range compressions {
		raw, err := os.ReadFile(s.blobPath(name, c))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: blob %s: %v", domain.ErrStore, name, err)
		}
		data, err := decompress(raw, c)
		if err != nil {
			return nil, fmt.Errorf("%w: blob %s: %v", domain.ErrStore, name, err)
		}
		s.mu.Lock()
		s.blobs.Add(name, data)
		s.mu.Unlock()
		return append([]byte(nil), data...), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, name)
}

// PutIntSeries stores a raw series starting at cadence start. valid may be
// nil when every value is present.
func (s *Store) PutIntSeries(id domain.StorageID, start int, values []int32, valid []bool, origins []int64) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("series %s: %d values but %d validity flags", id, len(values), len(valid))
	}
	return s.putDoc(s.seriesPath(id), intDoc{Start: start, Values: values, Valid: valid, Origins: origins})
}

// PutFloatSeries stores a calibrated or uncertainty series.
func (s *Store) PutFloatSeries(id domain.StorageID, start int, values []float32, valid []bool, origins []int64) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("series %s: %d values but %d validity flags", id, len(values), len(valid))
	}
	return s.putDoc(s.seriesPath(id), floatDoc{Start: start, Values: values, Valid: valid, Origins: origins})
}

// PutEvents replaces the cosmic-ray events of a pixel.
func (s *Store) PutEvents(id domain.StorageID, events []domain.CosmicRayEvent) error {
	docs := make([]eventDoc, len(events))
	for i, e := range events {
		docs[i] = eventDoc{MJD: e.MJD, Value: e.Value, TaskID: e.TaskID}
	}
	return s.putDoc(s.eventsPath(id), docs)
}

func (s *Store) putDoc(path string, v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

// readDoc decodes the document at path. It reports false when none exists.
func readDoc(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", domain.ErrStore, filepath.Base(path), err)
	}
	return true, nil
}

// ReadIntSeries implements ports.BlobStore.
func (s *Store) ReadIntSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill int32) ([]domain.IntSeries, error) {
	n := end - start + 1
	out := make([]domain.IntSeries, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc intDoc
		found, err := readDoc(s.seriesPath(id), &doc)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", id, err)
		}
		ser := domain.IntSeries{ID: id, Values: make([]int32, n), Gaps: make([]bool, n), Origins: doc.Origins}
		for k := 0; k < n; k++ {
			j := start + k - doc.Start
			if found && j >= 0 && j < len(doc.Values) && (doc.Valid == nil || doc.Valid[j]) {
				ser.Values[k] = doc.Values[j]
				continue
			}
			ser.Values[k] = fill
			ser.Gaps[k] = true
		}
		out[i] = ser
	}
	return out, nil
}

// ReadFloatSeries implements ports.BlobStore.
func (s *Store) ReadFloatSeries(ctx context.Context, ids []domain.StorageID, start, end int, fill float32) ([]domain.FloatSeries, error) {
	n := end - start + 1
	out := make([]domain.FloatSeries, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc floatDoc
		found, err := readDoc(s.seriesPath(id), &doc)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", id, err)
		}
		ser := domain.FloatSeries{ID: id, Values: make([]float32, n), Gaps: make([]bool, n), Origins: doc.Origins}
		for k := 0; k < n; k++ {
			j := start + k - doc.Start
			if found && j >= 0 && j < len(doc.Values) && (doc.Valid == nil || doc.Valid[j]) {
				ser.Values[k] = doc.Values[j]
				continue
			}
			ser.Values[k] = fill
			ser.Gaps[k] = true
		}
		out[i] = ser
	}
	return out, nil
}

// ReadEventSeries implements ports.BlobStore.
func (s *Store) ReadEventSeries(ctx context.Context, ids []domain.StorageID, startMJD, endMJD float64) ([]domain.EventSeries, error) {
	out := make([]domain.EventSeries, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var docs []eventDoc
		if _, err := readDoc(s.eventsPath(id), &docs); err != nil {
			return nil, fmt.Errorf("events %s: %w", id, err)
		}
		ser := domain.EventSeries{ID: id}
		for _, d := range docs {
			if d.MJD < startMJD || d.MJD > endMJD {
				continue
			}
			ser.Events = append(ser.Events, domain.CosmicRayEvent{ID: id, MJD: d.MJD, Value: d.Value, TaskID: d.TaskID})
		}
		out[i] = ser
	}
	return out, nil
}

// blobName recovers a blob name from its file name.
func blobName(file string) (string, bool) {
	base := filepath.Base(file)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	for _, c := range compressions {
		if ext := c.ext(); ext != "" && strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	name, err := url.PathUnescape(base)
	if err != nil {
		return "", false
	}
	return name, true
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
