package crct

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"

	"github.com/bft-labs/pixport/internal/domain"
)

// File is a decoded correction file.
type File struct {
	DataSet            string
	Cadence            int
	TargetTableID      int
	BackgroundTableID  int
	ApertureTableID    int
	CompressionTableID int
	Tables             []Table
}

// Table is one decoded correction table. Only the slice matching Layout is set.
type Table struct {
	Key
	Layout     Layout
	Visible    []VisibleRecord
	Collateral []CollateralRecord
}

// Table returns the table of k.
func (f *File) Table(k Key) (*Table, bool) {
	for i := range f.Tables {
		if f.Tables[i].Key == k {
			return &f.Tables[i], true
		}
	}
	return nil, false
}

// Read decodes a correction file.
func Read(r io.Reader) (*File, error) {
	ff, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open correction file: %w", err)
	}
	defer ff.Close()

	hdus := ff.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("correction file has no primary header")
	}
	out := &File{}
	ph := hdus[0].Header()
	out.DataSet = cardString(ph, "DATASET")
	out.Cadence = cardInt(ph, "CADENCE")
	out.TargetTableID = cardInt(ph, "TARGTBL")
	out.BackgroundTableID = cardInt(ph, "BKGTBL")
	out.ApertureTableID = cardInt(ph, "APERTBL")
	out.CompressionTableID = cardInt(ph, "COMPTBL")

	for _, hdu := range hdus[1:] {
		tbl, ok := hdu.(*fitsio.Table)
		if !ok || hdu.Type() != fitsio.BINARY_TBL {
			continue
		}
		t, err := readTable(tbl)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", hdu.Name(), err)
		}
		out.Tables = append(out.Tables, *t)
	}
	return out, nil
}

func readTable(tbl *fitsio.Table) (*Table, error) {
	cat, err := domain.ParseCategory(cardString(tbl.Header(), "CATEGORY"))
	if err != nil {
		return nil, err
	}
	t := &Table{
		Key:    Key{Category: cat, Cadence: cardInt(tbl.Header(), "CADENCEN")},
		Layout: LayoutFor(cat),
	}
	for i, c := range t.Layout.Columns() {
		if tbl.Index(c.Name) != i {
			return nil, fmt.Errorf("column %d is not %s", i+1, c.Name)
		}
	}

	n := tbl.NumRows()
	if n == 0 {
		return t, nil
	}
	rows, err := tbl.Read(0, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		switch t.Layout {
		case VisibleLayout:
			var r VisibleRecord
			if err := rows.Scan(&r.Row, &r.Column, &r.Correction, &r.TargetID, &r.ApertureID); err != nil {
				return nil, err
			}
			t.Visible = append(t.Visible, r)
		case CollateralLayout:
			var r CollateralRecord
			if err := rows.Scan(&r.Type, &r.Offset, &r.Correction); err != nil {
				return nil, err
			}
			t.Collateral = append(t.Collateral, r)
		}
	}
	return t, rows.Err()
}

func cardString(h *fitsio.Header, name string) string {
	c := h.Get(name)
	if c == nil {
		return ""
	}
	s, _ := c.Value.(string)
	return s
}

func cardInt(h *fitsio.Header, name string) int {
	c := h.Get(name)
	if c == nil {
		return 0
	}
	switch v := c.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
