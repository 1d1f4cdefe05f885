package crct

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/pixport/internal/domain"
)

func header() domain.ReferenceHeader {
	return domain.ReferenceHeader{
		Category:           domain.LongCadenceTarget,
		Cadence:            100,
		DataSet:            "kplr2009170043915",
		TargetTableID:      7,
		BackgroundTableID:  8,
		ApertureTableID:    9,
		CompressionTableID: 10,
	}
}

func readFile(t *testing.T, path string) *File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	got, err := Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return got
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), header().CosmicRayFileName())
	w := NewWriter(path, header())

	r2 := domain.Region{Module: 2, Output: 1}
	r3 := domain.Region{Module: 3, Output: 2}
	vis := Key{Category: domain.LongCadenceTarget, Cadence: 100}
	col := Key{Category: domain.LongCadenceCollateral, Cadence: 100}
	bkg := Key{Category: domain.Background, Cadence: 100}

	// Added out of order; read back by channel then position.
	if err := w.AddVisible(vis, r3, VisibleRecord{Row: 1, Column: 2, Correction: 1.25, TargetID: 5, ApertureID: 6}); err != nil {
		t.Fatalf("AddVisible: %v", err)
	}
	if err := w.AddVisible(vis, r2,
		VisibleRecord{Row: 10, Column: 21, Correction: -0.5, TargetID: 3, ApertureID: 4},
		VisibleRecord{Row: 10, Column: 20, Correction: 3.5, TargetID: 3, ApertureID: 4},
	); err != nil {
		t.Fatalf("AddVisible: %v", err)
	}
	if err := w.AddCollateral(col, r2, CollateralRecord{Type: int32(domain.MaskedSmear), Offset: 300, Correction: 12}); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	w.Register(bkg)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readFile(t, path)
	if got.DataSet != "kplr2009170043915" || got.Cadence != 100 {
		t.Errorf("primary = (%q, %d), want (kplr2009170043915, 100)", got.DataSet, got.Cadence)
	}
	ids := []int{got.TargetTableID, got.BackgroundTableID, got.ApertureTableID, got.CompressionTableID}
	if diff := cmp.Diff([]int{7, 8, 9, 10}, ids); diff != "" {
		t.Errorf("table ids mismatch (-want +got):\n%s", diff)
	}

	var keys []Key
	for _, tbl := range got.Tables {
		keys = append(keys, tbl.Key)
	}
	if diff := cmp.Diff([]Key{vis, bkg, col}, keys); diff != "" {
		t.Errorf("table order mismatch (-want +got):\n%s", diff)
	}

	tv, _ := got.Table(vis)
	wantVis := []VisibleRecord{
		{Row: 10, Column: 20, Correction: 3.5, TargetID: 3, ApertureID: 4},
		{Row: 10, Column: 21, Correction: -0.5, TargetID: 3, ApertureID: 4},
		{Row: 1, Column: 2, Correction: 1.25, TargetID: 5, ApertureID: 6},
	}
	if diff := cmp.Diff(wantVis, tv.Visible); diff != "" {
		t.Errorf("visible mismatch (-want +got):\n%s", diff)
	}
	tc, _ := got.Table(col)
	wantCol := []CollateralRecord{{Type: int32(domain.MaskedSmear), Offset: 300, Correction: 12}}
	if diff := cmp.Diff(wantCol, tc.Collateral); diff != "" {
		t.Errorf("collateral mismatch (-want +got):\n%s", diff)
	}
	tb, _ := got.Table(bkg)
	if len(tb.Visible) != 0 {
		t.Errorf("background rows = %d, want 0", len(tb.Visible))
	}
}

func TestWriter_LayoutMismatch(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "x.fits"), header())
	r := domain.Region{Module: 2, Output: 1}
	if err := w.AddVisible(Key{Category: domain.LongCadenceCollateral}, r); err == nil {
		t.Error("AddVisible on collateral category succeeded")
	}
	if err := w.AddCollateral(Key{Category: domain.LongCadenceTarget}, r); err == nil {
		t.Error("AddCollateral on visible category succeeded")
	}
}

func TestWriter_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.fits")
	w := NewWriter(path, header())
	vis := Key{Category: domain.LongCadenceTarget, Cadence: 100}
	col := Key{Category: domain.LongCadenceCollateral, Cadence: 100}

	regions := domain.AllRegions()
	var wg sync.WaitGroup
	for _, r := range regions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.AddVisible(vis, r, VisibleRecord{Row: int32(r.Module), Column: int32(r.Output), Correction: 1})
			_ = w.AddCollateral(col, r, CollateralRecord{Type: 1, Offset: int32(r.Channel()), Correction: 2})
		}()
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readFile(t, path)
	tv, _ := got.Table(vis)
	tc, _ := got.Table(col)
	if len(tv.Visible) != len(regions) || len(tc.Collateral) != len(regions) {
		t.Fatalf("rows = (%d, %d), want %d each", len(tv.Visible), len(tc.Collateral), len(regions))
	}
	for i, r := range regions {
		if tv.Visible[i].Row != int32(r.Module) || tv.Visible[i].Column != int32(r.Output) {
			t.Errorf("visible row %d = %+v, want region %v", i, tv.Visible[i], r)
		}
		if tc.Collateral[i].Offset != int32(r.Channel()) {
			t.Errorf("collateral row %d offset = %d, want %d", i, tc.Collateral[i].Offset, r.Channel())
		}
	}
}

func TestWriter_MergesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), header().CosmicRayFileName())
	r5 := domain.Region{Module: 6, Output: 1}
	r2 := domain.Region{Module: 2, Output: 1}

	first := NewWriter(path, header())
	k100 := Key{Category: domain.LongCadenceTarget, Cadence: 100}
	// Channel order differs from row order; the carried table must keep it.
	if err := first.AddVisible(k100, r5, VisibleRecord{Row: 1, Column: 1, Correction: 1}); err != nil {
		t.Fatal(err)
	}
	if err := first.AddVisible(k100, r2, VisibleRecord{Row: 9, Column: 9, Correction: 2}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	h := header()
	h.Cadence = 101
	second := NewWriter(path, h)
	k101 := Key{Category: domain.LongCadenceTarget, Cadence: 101}
	if err := second.AddVisible(k101, r2, VisibleRecord{Row: 3, Column: 4, Correction: 5}); err != nil {
		t.Fatal(err)
	}
	if err := second.Close(); err != nil {
		t.Fatal(err)
	}

	got := readFile(t, path)
	if got.Cadence != 100 {
		t.Errorf("primary cadence = %d, want 100", got.Cadence)
	}
	old, ok := got.Table(k100)
	if !ok {
		t.Fatal("table of cadence 100 lost")
	}
	want := []VisibleRecord{{Row: 9, Column: 9, Correction: 2}, {Row: 1, Column: 1, Correction: 1}}
	if diff := cmp.Diff(want, old.Visible); diff != "" {
		t.Errorf("carried rows mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.Table(k101); !ok {
		t.Error("table of cadence 101 missing")
	}

	other := header()
	other.DataSet = "kplr2010000000000"
	if err := NewWriter(path, other).Close(); err == nil {
		t.Error("merging a different data set succeeded")
	}
}

type mapLookup map[[2]int32]domain.TargetAperture

func (m mapLookup) Find(region domain.Region, background bool, row, column int32) (domain.TargetAperture, bool) {
	ta, ok := m[[2]int32{row, column}]
	return ta, ok
}

func TestVisibleRecords_SkipsUnresolvable(t *testing.T) {
	lookup := mapLookup{{10, 20}: {TargetID: 42, ApertureID: 3}}
	pixels := []PixelEvents{
		{A: 10, B: 20, Events: []domain.CosmicRayEvent{{MJD: 55000.5, Value: 3.5}, {MJD: 55001.5, Value: 9}}},
		{A: 11, B: 20, Events: []domain.CosmicRayEvent{{MJD: 55000.5, Value: 1}}},
	}
	got := VisibleRecords(lookup, domain.Region{Module: 2, Output: 1}, false, pixels, 55000.5)
	want := []VisibleRecord{{Row: 10, Column: 20, Correction: 3.5, TargetID: 42, ApertureID: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestCollateralRecords(t *testing.T) {
	pixels := []PixelEvents{
		{A: 2, B: 7, Events: []domain.CosmicRayEvent{{MJD: 1, Value: 4}, {MJD: 2, Value: 5}}},
	}
	got := CollateralRecords(pixels, 2)
	want := []CollateralRecord{{Type: 2, Offset: 7, Correction: 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		cat  domain.Category
		want Layout
	}{
		{domain.ShortCadenceTarget, VisibleLayout},
		{domain.LongCadenceTarget, VisibleLayout},
		{domain.Background, VisibleLayout},
		{domain.ShortCadenceCollateral, CollateralLayout},
		{domain.LongCadenceCollateral, CollateralLayout},
	}
	for _, tt := range tests {
		if got := LayoutFor(tt.cat); got != tt.want {
			t.Errorf("LayoutFor(%s) = %s, want %s", tt.cat, got, tt.want)
		}
	}
}
