package extract

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/pixport/internal/adapters/memstore"
	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/pmrf"
)

var region = domain.Region{Module: 2, Output: 1}

// fakeResolver derives ids the same way pmrf.Resolver does and can be told
// to drop cosmic-ray ids.
type fakeResolver struct {
	sub      *pmrf.SubTable
	dropCR   int
	resolved int
}

func (f *fakeResolver) Coordinates(ctx context.Context, table string, r domain.Region) (*pmrf.SubTable, error) {
	return f.sub, nil
}

func (f *fakeResolver) Resolve(ctx context.Context, table string, r domain.Region, c domain.Category, p domain.Purpose) ([]domain.StorageID, error) {
	f.resolved++
	ids := make([]domain.StorageID, 0, f.sub.Len())
	for i := range f.sub.A {
		ids = append(ids, domain.NewStorageID(r, c, p, f.sub.A[i], f.sub.B[i]))
	}
	if p == domain.PurposeCosmicRay && f.dropCR > 0 {
		ids = ids[:len(ids)-f.dropCR]
	}
	return ids, nil
}

func times(start int, mids ...float64) domain.CadenceTimes {
	ct := domain.CadenceTimes{Type: domain.LongCadence, Start: start}
	for _, m := range mids {
		ct.StartMJD = append(ct.StartMJD, m-0.01)
		ct.MidMJD = append(ct.MidMJD, m)
		ct.EndMJD = append(ct.EndMJD, m+0.01)
	}
	return ct
}

func visibleSub() *pmrf.SubTable {
	return &pmrf.SubTable{
		Region:      region,
		A:           []int32{10},
		B:           []int32{20},
		TargetIDs:   []int32{7},
		ApertureIDs: []int32{1},
	}
}

func id(c domain.Category, p domain.Purpose, a, b int32) domain.StorageID {
	return domain.NewStorageID(region, c, p, a, b)
}

func TestExtract_SubtractsCosmicRay(t *testing.T) {
	cat := domain.LongCadenceTarget
	store := memstore.New()
	store.PutIntSeries(id(cat, domain.PurposeRaw, 10, 20), 100, []int32{500}, 11)
	store.PutFloatSeries(id(cat, domain.PurposeCalibrated, 10, 20), 100, []float32{480}, 12)
	store.PutFloatSeries(id(cat, domain.PurposeUncertainty, 10, 20), 100, []float32{2.5}, 12)
	store.PutEvent(domain.CosmicRayEvent{ID: id(cat, domain.PurposeCosmicRay, 10, 20), MJD: 55000.5, Value: 3.5, TaskID: 13})

	ex := New(&fakeResolver{sub: visibleSub()}, store, nil)
	b, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(100, 55000.5),
		Tables: []TableRequest{{Table: "lct-1", Category: cat}},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := b.Float[id(cat, domain.PurposeCalibrated, 10, 20)].Values[0]; got != 476.5 {
		t.Errorf("calibrated = %v, want 476.5", got)
	}
	if got := b.Float[id(cat, domain.PurposeUncertainty, 10, 20)].Values[0]; got != 2.5 {
		t.Errorf("uncertainty = %v, want 2.5", got)
	}
	if got := b.Raw[id(cat, domain.PurposeRaw, 10, 20)].Values[0]; got != 500 {
		t.Errorf("raw = %v, want 500", got)
	}
	if b.Corrected != 1 {
		t.Errorf("Corrected = %d, want 1", b.Corrected)
	}
	px, ok := b.Pixels(TableRequest{Table: "lct-1", Category: cat})
	if !ok {
		t.Fatal("Pixels not found")
	}
	if diff := cmp.Diff([]int64{11, 12, 13}, b.TaskIDs(px)); diff != "" {
		t.Errorf("TaskIDs mismatch (-want +got):\n%s", diff)
	}
	// raw, calibrated+uncertainty, cosmic rays
	if got := store.SeriesRequests(); got != 3 {
		t.Errorf("SeriesRequests = %d, want 3", got)
	}
}

func TestExtract_SubtractionProperty(t *testing.T) {
	cat := domain.LongCadenceTarget
	cal := []float32{100, 200, 300, 400}
	mids := []float64{55000.1, 55000.2, 55000.3, 55000.4}
	evs := map[int]float32{1: 12.25, 3: 0.5}

	store := memstore.New()
	store.PutIntSeries(id(cat, domain.PurposeRaw, 10, 20), 10, []int32{1, 2, 3, 4})
	store.PutFloatSeries(id(cat, domain.PurposeCalibrated, 10, 20), 10, cal)
	store.PutFloatSeries(id(cat, domain.PurposeUncertainty, 10, 20), 10, []float32{1, 1, 1, 1})
	for k, v := range evs {
		store.PutEvent(domain.CosmicRayEvent{ID: id(cat, domain.PurposeCosmicRay, 10, 20), MJD: mids[k], Value: v})
	}
	// Between two mid-times: matches no cadence.
	store.PutEvent(domain.CosmicRayEvent{ID: id(cat, domain.PurposeCosmicRay, 10, 20), MJD: 55000.25, Value: 99})

	ex := New(&fakeResolver{sub: visibleSub()}, store, nil)
	b, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(10, mids...),
		Tables: []TableRequest{{Table: "lct-1", Category: cat}},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := b.Float[id(cat, domain.PurposeCalibrated, 10, 20)].Values
	for k := range cal {
		want := cal[k] - evs[k]
		if got[k] != want {
			t.Errorf("cadence %d: calibrated = %v, want %v", k, got[k], want)
		}
	}
}

func TestExtract_ExemptCollateralUntouched(t *testing.T) {
	cat := domain.LongCadenceCollateral
	sub := &pmrf.SubTable{
		Region: region,
		A:      []int32{int32(domain.BlackLevel), int32(domain.BlackMasked)},
		B:      []int32{3, 4},
	}
	store := memstore.New()
	for i := range sub.A {
		store.PutIntSeries(id(cat, domain.PurposeRaw, sub.A[i], sub.B[i]), 1, []int32{9})
		store.PutFloatSeries(id(cat, domain.PurposeCalibrated, sub.A[i], sub.B[i]), 1, []float32{50})
		store.PutFloatSeries(id(cat, domain.PurposeUncertainty, sub.A[i], sub.B[i]), 1, []float32{1})
		store.PutEvent(domain.CosmicRayEvent{ID: id(cat, domain.PurposeCosmicRay, sub.A[i], sub.B[i]), MJD: 55000, Value: 5})
	}

	ex := New(&fakeResolver{sub: sub}, store, nil)
	b, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(1, 55000),
		Tables: []TableRequest{{Table: "lcc-1", Category: cat}},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := b.Float[id(cat, domain.PurposeCalibrated, sub.A[0], sub.B[0])].Values[0]; got != 45 {
		t.Errorf("black level = %v, want 45", got)
	}
	if got := b.Float[id(cat, domain.PurposeCalibrated, sub.A[1], sub.B[1])].Values[0]; got != 50 {
		t.Errorf("black masked = %v, want 50 (exempt)", got)
	}
	if _, ok := b.CosmicRays[id(cat, domain.PurposeCosmicRay, sub.A[1], sub.B[1])]; ok {
		t.Error("fetched cosmic-ray series of an exempt pixel")
	}
}

func TestExtract_GapsFilled(t *testing.T) {
	cat := domain.LongCadenceTarget
	store := memstore.New()
	store.PutIntSeries(id(cat, domain.PurposeRaw, 10, 20), 1, []int32{5})

	ex := New(&fakeResolver{sub: visibleSub()}, store, nil)
	b, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(1, 55000, 55001),
		Tables: []TableRequest{{Table: "lct-1", Category: cat}},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	raw := b.Raw[id(cat, domain.PurposeRaw, 10, 20)]
	if diff := cmp.Diff([]int32{5, domain.MissingRaw}, raw.Values); diff != "" {
		t.Errorf("raw mismatch (-want +got):\n%s", diff)
	}
	cal := b.Float[id(cat, domain.PurposeCalibrated, 10, 20)]
	for k, v := range cal.Values {
		if !math.IsNaN(float64(v)) || !cal.Gaps[k] {
			t.Errorf("cadence %d: calibrated = %v gap=%v, want NaN gap", k, v, cal.Gaps[k])
		}
	}
}

func TestExtract_InconsistentMapping(t *testing.T) {
	sub := visibleSub()
	sub.A = append(sub.A, 11)
	sub.B = append(sub.B, 21)
	sub.TargetIDs = append(sub.TargetIDs, 7)
	sub.ApertureIDs = append(sub.ApertureIDs, 1)

	ex := New(&fakeResolver{sub: sub, dropCR: 1}, memstore.New(), nil)
	_, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(1, 55000),
		Tables: []TableRequest{{Table: "lct-1", Category: domain.LongCadenceTarget}},
	})
	if !errors.Is(err, domain.ErrInconsistentMapping) {
		t.Fatalf("err = %v, want ErrInconsistentMapping", err)
	}
}

func TestExtract_StoreError(t *testing.T) {
	store := memstore.New()
	boom := errors.New("boom")
	store.Fail(boom)

	ex := New(&fakeResolver{sub: visibleSub()}, store, nil)
	_, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(1, 55000),
		Tables: []TableRequest{{Table: "lct-1", Category: domain.LongCadenceTarget}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestExtract_DuplicateRequestsResolvedOnce(t *testing.T) {
	res := &fakeResolver{sub: visibleSub()}
	ex := New(res, memstore.New(), nil)
	req := TableRequest{Table: "lct-1", Category: domain.LongCadenceTarget}
	b, err := ex.Extract(context.Background(), Request{
		Region: region,
		Times:  times(1, 55000),
		Tables: []TableRequest{req, req},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(b.Tables) != 1 {
		t.Errorf("len(Tables) = %d, want 1", len(b.Tables))
	}
	if res.resolved != len(domain.Purposes) {
		t.Errorf("resolved = %d, want %d", res.resolved, len(domain.Purposes))
	}
}
