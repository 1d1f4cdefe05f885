package export

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/fitsfile"
)

// Pixel table column names.
const (
	ColRawCounts   = "RAW_CNTS"
	ColCalibrated  = "CAL_PIX"
	ColCollateral  = "CAL_COLL"
	ColUncertainty = "CAL_ERR"
)

// LayoutFor returns the pixel table layout of a category.
func LayoutFor(c domain.Category) fitsfile.Layout {
	cal := ColCalibrated
	if c.IsCollateral() {
		cal = ColCollateral
	}
	return fitsfile.Layout{
		{Name: ColRawCounts, Format: "J", Unit: "count"},
		{Name: cal, Format: "E", Unit: "e-"},
		{Name: ColUncertainty, Format: "E", Unit: "e-"},
	}
}

// Entry records where one region's table was written.
type Entry struct {
	Region domain.Region
	Offset int64
	Rows   int
}

type encodedRegion struct {
	data []byte
	rows int
}

// OutputFileInfo is one exported pixel file and the region tables written to
// it. Region tables land in the file in the order of the region list given
// at creation, whatever order they are appended in. Safe for concurrent use.
type OutputFileInfo struct {
	Header  domain.ReferenceHeader
	Layout  fitsfile.Layout
	History string

	order []domain.Region

	mu      sync.Mutex
	file    *fitsfile.File
	entries []Entry
	// pending holds encoded regions waiting for an earlier region.
	pending map[domain.Region]encodedRegion
	size    int64
	closed  bool
}

// CreateOutputFile creates the file of h in dir and writes its primary
// header declaring one extension per region. Regions must be in canonical
// order.
func CreateOutputFile(dir string, h domain.ReferenceHeader, historyName string, regions []domain.Region, created time.Time) (*OutputFileInfo, error) {
	path := filepath.Join(dir, h.FileName())
	f, err := fitsfile.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	primary := fitsfile.PrimaryHeader(fitsfile.PrimaryInfo{
		FileName:    h.FileName(),
		Extensions:  len(regions),
		Created:     created,
		Cadence:     h.Cadence,
		CadenceType: h.Category.CadenceType().String(),
		DataSet:     h.DataSet,
		Quarter:     h.Quarter,
		DataRelease: h.DataRelease,
		Extra: []fitsfile.Card{
			{Key: "DATATYPE", Value: h.Category.FileSuffix(), Comment: "pixel category"},
			{Key: "ORIGFILE", Value: h.OriginalFile, Comment: "original data file"},
			{Key: "PMRFNAME", Value: h.MappingTable, Comment: "pixel mapping table"},
			{Key: "TARGTBL", Value: h.TargetTableID, Comment: "target table id"},
			{Key: "BKGTBL", Value: h.BackgroundTableID, Comment: "background table id"},
			{Key: "APERTBL", Value: h.ApertureTableID, Comment: "aperture table id"},
			{Key: "COMPTBL", Value: h.CompressionTableID, Comment: "compression table id"},
			{Key: "CRCTFILE", Value: h.CosmicRayFileName(), Comment: "cosmic-ray correction file"},
			{Key: "HISTFILE", Value: historyName, Comment: "processing history file"},
		},
	})
	if err := f.WritePrimary(primary); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &OutputFileInfo{
		Header:  h,
		Layout:  LayoutFor(h.Category),
		History: historyName,
		order:   append([]domain.Region(nil), regions...),
		file:    f,
		pending: make(map[domain.Region]encodedRegion),
	}, nil
}

// Path returns the file path.
func (o *OutputFileInfo) Path() string { return o.file.Path() }

// AppendRegion encodes the rows of region and writes a placeholder header
// and the rows once every region before it in the file's region order has
// been written. Offsets and row counts are recorded as tables are written.
func (o *OutputFileInfo) AppendRegion(region domain.Region, raw []int32, cal, unc []float32) error {
	data, err := fitsfile.EncodePixelRows(raw, cal, unc)
	if err != nil {
		return fmt.Errorf("%s region %v: %w", o.Header.FileName(), region, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("%s: file closed", o.Header.FileName())
	}
	pos := slices.Index(o.order, region)
	if pos < 0 {
		return fmt.Errorf("%s: region %v not exported to this file", o.Header.FileName(), region)
	}
	if _, waiting := o.pending[region]; waiting || pos < len(o.entries) {
		return fmt.Errorf("%s: region %v written twice", o.Header.FileName(), region)
	}
	o.pending[region] = encodedRegion{data: data, rows: len(raw)}

	for len(o.entries) < len(o.order) {
		next := o.order[len(o.entries)]
		enc, ok := o.pending[next]
		if !ok {
			break
		}
		delete(o.pending, next)
		off, err := o.file.Append(fitsfile.PlaceholderHeader(next), enc.data)
		if err != nil {
			return fmt.Errorf("%s region %v: %w", o.Header.FileName(), next, err)
		}
		o.entries = append(o.entries, Entry{Region: next, Offset: off, Rows: enc.rows})
	}
	return nil
}

// Entries returns the written region tables in file order.
func (o *OutputFileInfo) Entries() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.entries...)
}

// Rows returns the total number of rows written. Regions still waiting for
// an earlier region are not counted.
func (o *OutputFileInfo) Rows() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.entries {
		n += e.Rows
	}
	return n
}

// Patch rewrites every placeholder with the final table header, in file
// order, then reads each back and checks its row count.
func (o *OutputFileInfo) Patch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) != len(o.order) {
		return fmt.Errorf("%w: %s has %d region tables written (%d waiting), primary header declares %d",
			domain.ErrRegionCountMismatch, o.Header.FileName(), len(o.entries), len(o.pending), len(o.order))
	}

	entries := o.entries
	for _, e := range entries {
		if err := o.file.Patch(e.Offset, fitsfile.TableHeader(e.Region, o.Layout, e.Rows)); err != nil {
			return fmt.Errorf("%s region %v: %w", o.Header.FileName(), e.Region, err)
		}
	}
	for _, e := range entries {
		h, err := fitsfile.ReadHeaderAt(o.file.ReaderAt(), e.Offset)
		if err != nil {
			return fmt.Errorf("%s region %v: %w", o.Header.FileName(), e.Region, err)
		}
		rows, err := h.Int("NAXIS2")
		if err != nil {
			return fmt.Errorf("%s region %v: %w", o.Header.FileName(), e.Region, err)
		}
		fields, err := h.Int("TFIELDS")
		if err != nil {
			return fmt.Errorf("%s region %v: %w", o.Header.FileName(), e.Region, err)
		}
		if rows != e.Rows || fields != len(o.Layout) {
			return fmt.Errorf("%w: %s region %v header declares %d rows and %d fields, wrote %d rows and %d fields",
				domain.ErrRowCountMismatch, o.Header.FileName(), e.Region, rows, fields, e.Rows, len(o.Layout))
		}
	}
	return nil
}

// Close syncs and closes the file and returns its size. Closing twice is a no-op.
func (o *OutputFileInfo) Close() (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return o.size, nil
	}
	o.closed = true
	o.size = o.file.Size()
	if err := o.file.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", o.Path(), err)
	}
	return o.size, nil
}
