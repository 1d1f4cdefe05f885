package crct

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/astrogo/fitsio"

	"github.com/bft-labs/pixport/internal/domain"
)

// Key identifies one correction table.
type Key struct {
	Category domain.Category
	Cadence  int
}

// ExtName returns the extension name of the table.
func (k Key) ExtName() string {
	return fmt.Sprintf("%s %d", k.Category.FileSuffix(), k.Cadence)
}

type visibleEntry struct {
	channel int
	rec     VisibleRecord
}

type collateralEntry struct {
	channel int
	rec     CollateralRecord
}

type table struct {
	visible    []visibleEntry
	collateral []collateralEntry
	// carried is set for tables read back from an existing file; their rows
	// keep the order they were written in.
	carried bool
}

// Writer accumulates the correction records of one data set and writes the
// file on Close. Safe for concurrent use.
type Writer struct {
	path   string
	header domain.ReferenceHeader

	mu     sync.Mutex
	tables map[Key]*table
	closed bool
}

// NewWriter creates a writer for the data set of h. Nothing is written until Close.
func NewWriter(path string, h domain.ReferenceHeader) *Writer {
	return &Writer{path: path, header: h, tables: make(map[Key]*table)}
}

// Path returns the destination path.
func (w *Writer) Path() string { return w.path }

// Register makes sure the table of k is written even if it receives no records.
func (w *Writer) Register(k Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.table(k)
}

func (w *Writer) table(k Key) *table {
	t, ok := w.tables[k]
	if !ok {
		t = &table{}
		w.tables[k] = t
	}
	return t
}

// AddVisible appends visible records of one region.
func (w *Writer) AddVisible(k Key, region domain.Region, recs ...VisibleRecord) error {
	if LayoutFor(k.Category) != VisibleLayout {
		return fmt.Errorf("crct: %s is not a visible category", k.Category)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("crct: %s: writer closed", w.path)
	}
	t := w.table(k)
	for _, r := range recs {
		t.visible = append(t.visible, visibleEntry{channel: region.Channel(), rec: r})
	}
	return nil
}

// AddCollateral appends collateral records of one region.
func (w *Writer) AddCollateral(k Key, region domain.Region, recs ...CollateralRecord) error {
	if LayoutFor(k.Category) != CollateralLayout {
		return fmt.Errorf("crct: %s is not a collateral category", k.Category)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("crct: %s: writer closed", w.path)
	}
	t := w.table(k)
	for _, r := range recs {
		t.collateral = append(t.collateral, collateralEntry{channel: region.Channel(), rec: r})
	}
	return nil
}

// Close writes the primary header and every table. Tables are ordered by
// category then cadence; rows by region channel then pixel position.
// Tables of an existing file at the destination that this writer did not
// register are carried over, so consecutive exports of one data set
// accumulate in a single file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.mergeExisting(); err != nil {
		return err
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	if err := w.write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	return f.Close()
}

func (w *Writer) mergeExisting() error {
	in, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	defer in.Close()

	prev, err := Read(in)
	if err != nil {
		return fmt.Errorf("merge %s: %w", w.path, err)
	}
	if prev.DataSet != w.header.DataSet {
		return fmt.Errorf("merge %s: file holds data set %q, want %q", w.path, prev.DataSet, w.header.DataSet)
	}
	if prev.Cadence < w.header.Cadence {
		w.header.Cadence = prev.Cadence
	}
	for _, pt := range prev.Tables {
		if _, ok := w.tables[pt.Key]; ok {
			continue
		}
		t := &table{carried: true}
		for _, r := range pt.Visible {
			t.visible = append(t.visible, visibleEntry{rec: r})
		}
		for _, r := range pt.Collateral {
			t.collateral = append(t.collateral, collateralEntry{rec: r})
		}
		w.tables[pt.Key] = t
	}
	return nil
}

func (w *Writer) write(out *os.File) error {
	f, err := fitsio.Create(out)
	if err != nil {
		return err
	}

	keys := make([]Key, 0, len(w.tables))
	for k := range w.tables {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return cmp.Compare(a.Cadence, b.Cadence)
	})

	h := w.header
	phdu := fitsio.NewImage(8, nil)
	defer phdu.Close()
	err = phdu.Header().Append(
		fitsio.Card{Name: "NEXTEND", Value: len(keys), Comment: "number of correction tables"},
		fitsio.Card{Name: "DATASET", Value: h.DataSet, Comment: "data set name"},
		fitsio.Card{Name: "CADENCE", Value: h.Cadence, Comment: "cadence number"},
		fitsio.Card{Name: "CADTYPE", Value: h.Category.CadenceType().String(), Comment: "cadence type"},
		fitsio.Card{Name: "TARGTBL", Value: h.TargetTableID, Comment: "target table id"},
		fitsio.Card{Name: "BKGTBL", Value: h.BackgroundTableID, Comment: "background table id"},
		fitsio.Card{Name: "APERTBL", Value: h.ApertureTableID, Comment: "aperture table id"},
		fitsio.Card{Name: "COMPTBL", Value: h.CompressionTableID, Comment: "compression table id"},
	)
	if err != nil {
		return err
	}
	if err := f.Write(phdu); err != nil {
		return err
	}

	for _, k := range keys {
		if err := writeTable(f, k, w.tables[k]); err != nil {
			return fmt.Errorf("%s: %w", k.ExtName(), err)
		}
	}
	return f.Close()
}

func writeTable(f *fitsio.File, k Key, t *table) error {
	layout := LayoutFor(k.Category)
	tbl, err := fitsio.NewTable(k.ExtName(), layout.Columns(), fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()
	err = tbl.Header().Append(
		fitsio.Card{Name: "CATEGORY", Value: k.Category.String(), Comment: "pixel category"},
		fitsio.Card{Name: "CADENCEN", Value: k.Cadence, Comment: "cadence number"},
	)
	if err != nil {
		return err
	}

	switch layout {
	case VisibleLayout:
		if !t.carried {
			sortVisible(t.visible)
		}
		for _, e := range t.visible {
			r := e.rec
			if err := tbl.Write(&r.Row, &r.Column, &r.Correction, &r.TargetID, &r.ApertureID); err != nil {
				return err
			}
		}
	case CollateralLayout:
		if !t.carried {
			sortCollateral(t.collateral)
		}
		for _, e := range t.collateral {
			r := e.rec
			if err := tbl.Write(&r.Type, &r.Offset, &r.Correction); err != nil {
				return err
			}
		}
	}
	return f.Write(tbl)
}

func sortVisible(entries []visibleEntry) {
	slices.SortStableFunc(entries, func(a, b visibleEntry) int {
		if c := cmp.Compare(a.channel, b.channel); c != 0 {
			return c
		}
		if c := cmp.Compare(a.rec.Row, b.rec.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.Column, b.rec.Column)
	})
}

func sortCollateral(entries []collateralEntry) {
	slices.SortStableFunc(entries, func(a, b collateralEntry) int {
		if c := cmp.Compare(a.channel, b.channel); c != 0 {
			return c
		}
		if c := cmp.Compare(a.rec.Type, b.rec.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.Offset, b.rec.Offset)
	})
}
