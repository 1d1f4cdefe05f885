package pmrf

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/astrogo/fitsio"

	"github.com/bft-labs/pixport/internal/domain"
)

// Column names of the mapping table extensions.
const (
	ColRow        = "ROW"
	ColColumn     = "COLUMN"
	ColTargetID   = "TARGETID"
	ColApertureID = "APERTUREID"
	ColType       = "TYPE"
	ColOffset     = "OFFSET"
)

// SubTable lists the pixels of one region. For visible pixels A and B are
// row and column; for collateral pixels they are collateral type and offset,
// and TargetIDs and ApertureIDs are nil.
type SubTable struct {
	Region      domain.Region
	A           []int32
	B           []int32
	TargetIDs   []int32
	ApertureIDs []int32
}

// Len returns the number of pixels.
func (s *SubTable) Len() int { return len(s.A) }

func (s *SubTable) validate(collateral bool) error {
	if len(s.B) != len(s.A) {
		return fmt.Errorf("sub-table %v: %d positions but %d second coordinates", s.Region, len(s.A), len(s.B))
	}
	if collateral {
		return nil
	}
	if len(s.TargetIDs) != len(s.A) || len(s.ApertureIDs) != len(s.A) {
		return fmt.Errorf("sub-table %v: %d pixels but %d targets and %d apertures",
			s.Region, len(s.A), len(s.TargetIDs), len(s.ApertureIDs))
	}
	return nil
}

// Table is a decoded pixel mapping reference table. Immutable once built.
type Table struct {
	Name       string
	Collateral bool
	subs       map[domain.Region]*SubTable
}

// NewTable builds a table from sub-tables.
func NewTable(name string, collateral bool, subs ...*SubTable) (*Table, error) {
	t := &Table{Name: name, Collateral: collateral, subs: make(map[domain.Region]*SubTable, len(subs))}
	for _, s := range subs {
		if err := s.validate(collateral); err != nil {
			return nil, err
		}
		if _, dup := t.subs[s.Region]; dup {
			return nil, fmt.Errorf("table %s: duplicate sub-table for region %v", name, s.Region)
		}
		t.subs[s.Region] = s
	}
	return t, nil
}

// Sub returns the sub-table of a region.
func (t *Table) Sub(r domain.Region) (*SubTable, bool) {
	s, ok := t.subs[r]
	return s, ok
}

// Regions returns the regions present, in canonical order.
func (t *Table) Regions() []domain.Region {
	out := make([]domain.Region, 0, len(t.subs))
	for r := range t.subs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel() < out[j].Channel() })
	return out
}

func parseExtName(name string) (domain.Region, error) {
	var r domain.Region
	if _, err := fmt.Sscanf(name, "MOD.OUT %d.%d", &r.Module, &r.Output); err != nil {
		return r, fmt.Errorf("extension %q: %w", name, err)
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("extension %q: %w", name, err)
	}
	return r, nil
}

// Decode parses a mapping table from its FITS encoding.
func Decode(name string, data []byte) (*Table, error) {
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open mapping table %s: %w", name, err)
	}
	defer f.Close()

	var (
		subs       []*SubTable
		collateral bool
		sawTable   bool
	)
	for _, hdu := range f.HDUs() {
		if hdu.Type() != fitsio.BINARY_TBL {
			continue
		}
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			continue
		}
		region, err := parseExtName(hdu.Name())
		if err != nil {
			return nil, fmt.Errorf("mapping table %s: %w", name, err)
		}
		isColl := tbl.Index(ColType) >= 0
		if sawTable && isColl != collateral {
			return nil, fmt.Errorf("mapping table %s: mixes visible and collateral extensions", name)
		}
		collateral, sawTable = isColl, true

		sub, err := readSubTable(tbl, region, isColl)
		if err != nil {
			return nil, fmt.Errorf("mapping table %s: %w", name, err)
		}
		subs = append(subs, sub)
	}
	return NewTable(name, collateral, subs...)
}

func readSubTable(tbl *fitsio.Table, region domain.Region, collateral bool) (*SubTable, error) {
	sub := &SubTable{Region: region}
	want := []string{ColRow, ColColumn, ColTargetID, ColApertureID}
	if collateral {
		want = []string{ColType, ColOffset}
	}
	for i, c := range want {
		if tbl.Index(c) != i {
			return nil, fmt.Errorf("%s: column %d is not %s", region.ExtName(), i+1, c)
		}
	}

	n := tbl.NumRows()
	if n == 0 {
		if !collateral {
			sub.TargetIDs, sub.ApertureIDs = []int32{}, []int32{}
		}
		return sub, nil
	}
	rows, err := tbl.Read(0, n)
	if err != nil {
		return nil, fmt.Errorf("%s: read rows: %w", region.ExtName(), err)
	}
	defer rows.Close()

	sub.A = make([]int32, 0, n)
	sub.B = make([]int32, 0, n)
	if !collateral {
		sub.TargetIDs = make([]int32, 0, n)
		sub.ApertureIDs = make([]int32, 0, n)
	}
	for rows.Next() {
		var a, b, tid, aid int32
		if collateral {
			err = rows.Scan(&a, &b)
		} else {
			err = rows.Scan(&a, &b, &tid, &aid)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", region.ExtName(), err)
		}
		sub.A = append(sub.A, a)
		sub.B = append(sub.B, b)
		if !collateral {
			sub.TargetIDs = append(sub.TargetIDs, tid)
			sub.ApertureIDs = append(sub.ApertureIDs, aid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", region.ExtName(), err)
	}
	return sub, nil
}

// Encode writes the table in its FITS encoding, one extension per region in
// canonical order.
func Encode(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		return nil, err
	}

	phdu := fitsio.NewImage(8, nil)
	defer phdu.Close()
	err = phdu.Header().Append(
		fitsio.Card{Name: "PMRFNAME", Value: t.Name, Comment: "mapping table name"},
		fitsio.Card{Name: "COLLATRL", Value: t.Collateral, Comment: "collateral pixel table"},
	)
	if err != nil {
		return nil, err
	}
	if err := f.Write(phdu); err != nil {
		return nil, err
	}

	for _, r := range t.Regions() {
		if err := writeSubTable(f, t.subs[r], t.Collateral); err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.ExtName(), err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSubTable(f *fitsio.File, sub *SubTable, collateral bool) error {
	cols := []fitsio.Column{
		{Name: ColRow, Format: "J"},
		{Name: ColColumn, Format: "J"},
		{Name: ColTargetID, Format: "J"},
		{Name: ColApertureID, Format: "J"},
	}
	if collateral {
		cols = []fitsio.Column{
			{Name: ColType, Format: "J"},
			{Name: ColOffset, Format: "J"},
		}
	}
	tbl, err := fitsio.NewTable(sub.Region.ExtName(), cols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	for i := range sub.A {
		a, b := sub.A[i], sub.B[i]
		if collateral {
			err = tbl.Write(&a, &b)
		} else {
			tid, aid := sub.TargetIDs[i], sub.ApertureIDs[i]
			err = tbl.Write(&a, &b, &tid, &aid)
		}
		if err != nil {
			return err
		}
	}
	return f.Write(tbl)
}
