package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/internal/ports"
)

var _ ports.MetadataStore = (*Store)(nil)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "meta", "pixport.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReferenceHeaders(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	want := []domain.ReferenceHeader{
		{Category: domain.LongCadenceTarget, Cadence: 100, DataSet: "kplr100", MappingTable: "lct-1", TargetTableID: 7, Quarter: 3, DataRelease: 5},
		{Category: domain.LongCadenceCollateral, Cadence: 100, DataSet: "kplr100", MappingTable: "lcc-1"},
		{Category: domain.LongCadenceTarget, Cadence: 101, DataSet: "kplr101", MappingTable: "lct-1"},
	}
	for _, h := range want {
		if err := s.InsertHeader(ctx, h); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertHeader(ctx, domain.ReferenceHeader{Category: domain.ShortCadenceTarget, Cadence: 100, DataSet: "sc", MappingTable: "sct-1"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReferenceHeaders(ctx, domain.LongCadence, 100, 101)
	if err != nil {
		t.Fatalf("ReferenceHeaders: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestCadenceTimesAndCovering(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for c := 100; c <= 102; c++ {
		base := float64(c)
		if err := s.InsertCadence(ctx, domain.LongCadence, c, base, base+0.5, base+0.9375); err != nil {
			t.Fatal(err)
		}
	}
	for c := 0; c < 60; c++ {
		base := 100 + float64(c)/16
		if err := s.InsertCadence(ctx, domain.ShortCadence, 3000+c, base, base+1.0/32, base+1.0/16); err != nil {
			t.Fatal(err)
		}
	}

	ct, err := s.CadenceTimes(ctx, domain.LongCadence, 100, 102)
	if err != nil {
		t.Fatalf("CadenceTimes: %v", err)
	}
	if diff := cmp.Diff([]float64{100.5, 101.5, 102.5}, ct.MidMJD); diff != "" {
		t.Errorf("mid times mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.CadenceTimes(ctx, domain.LongCadence, 100, 103); !errors.Is(err, domain.ErrStore) {
		t.Errorf("gap: err = %v, want ErrStore", err)
	}

	lo, hi, err := s.CoveringCadences(ctx, domain.LongCadence, 100, 100)
	if err != nil {
		t.Fatalf("CoveringCadences: %v", err)
	}
	if lo != 3000 || hi != 3015 {
		t.Errorf("covering short = %d-%d, want 3000-3015", lo, hi)
	}
	lo, hi, err = s.CoveringCadences(ctx, domain.ShortCadence, 3020, 3025)
	if err != nil {
		t.Fatalf("CoveringCadences: %v", err)
	}
	if lo != 101 || hi != 101 {
		t.Errorf("covering long = %d-%d, want 101-101", lo, hi)
	}
	if _, _, err := s.CoveringCadences(ctx, domain.LongCadence, 500, 500); !errors.Is(err, domain.ErrStore) {
		t.Errorf("unknown cadence: err = %v, want ErrStore", err)
	}
}

func TestTaskLineageAlertsModels(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	t0 := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.TaskRecord{
		{ID: 1, PipelineName: "cal", ModuleName: "root", StartProcessing: t0},
		{ID: 2, ParentID: 1, PipelineName: "cal", ModuleName: "cal", StartProcessing: t0.Add(time.Hour)},
		{ID: 3, ParentID: 2, PipelineName: "cal", ModuleName: "crc", StartProcessing: t0.Add(2 * time.Hour)},
		{ID: 9, PipelineName: "other"},
	}
	for _, task := range tasks {
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.TaskLineage(ctx, []int64{3})
	if err != nil {
		t.Fatalf("TaskLineage: %v", err)
	}
	if diff := cmp.Diff(tasks[:3], got); diff != "" {
		t.Errorf("lineage mismatch (-want +got):\n%s", diff)
	}

	for _, a := range []domain.Alert{
		{TaskID: 3, Time: t0.Add(2 * time.Minute), Severity: "WARN", Source: "crc", Message: "b"},
		{TaskID: 2, Time: t0.Add(5 * time.Minute), Severity: "WARN", Source: "cal", Message: "a"},
		{TaskID: 3, Time: t0.Add(time.Minute), Severity: "INFO", Source: "crc", Message: "c"},
		{TaskID: 9, Time: t0, Severity: "INFO", Source: "other", Message: "x"},
	} {
		if err := s.InsertAlert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	alerts, err := s.Alerts(ctx, []int64{2, 3})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	var msgs []string
	for _, a := range alerts {
		msgs = append(msgs, a.Message)
	}
	if diff := cmp.Diff([]string{"a", "c", "b"}, msgs); diff != "" {
		t.Errorf("alert order mismatch (-want +got):\n%s", diff)
	}

	for _, e := range []domain.ModelEvent{
		{IngestTime: t0.Add(30 * time.Minute), ModelType: "gain", Revision: 1},
		{IngestTime: t0.Add(30 * time.Minute), ModelType: "dark", Revision: 2},
		{IngestTime: t0.Add(5 * time.Hour), ModelType: "late", Revision: 3},
	} {
		if err := s.InsertModelEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	models, err := s.ModelHistory(ctx, t0, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ModelHistory: %v", err)
	}
	var types []string
	for _, m := range models {
		types = append(types, m.ModelType)
	}
	if diff := cmp.Diff([]string{"dark", "gain"}, types); diff != "" {
		t.Errorf("model order mismatch (-want +got):\n%s", diff)
	}
}
