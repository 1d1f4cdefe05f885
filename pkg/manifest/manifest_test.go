package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "pixels")
	writeFile(t, b, "pixels")

	sa, da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	_, db, err := Digest(b)
	if err != nil {
		t.Fatal(err)
	}
	if sa != 6 {
		t.Errorf("size = %d, want 6", sa)
	}
	if da != db || len(da) != 64 {
		t.Errorf("digests %q and %q should match and be 32 bytes hex", da, db)
	}

	writeFile(t, b, "pixelz")
	_, db, _ = Digest(b)
	if da == db {
		t.Error("digest unchanged after content change")
	}
}

func TestFileRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewFileRepository(dir)

	empty, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}
	if len(empty.Runs) != 0 {
		t.Errorf("Load() = %+v, want empty", empty)
	}

	out := filepath.Join(dir, "kplr-lcs.fits")
	writeFile(t, out, "data")
	run := Run{ID: "r1", Start: 100, End: 199}
	if err := run.AddFile(out, "pixels"); err != nil {
		t.Fatal(err)
	}
	m := Manifest{Option: "all", Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Runs: []Run{run}}
	m.Relativize(dir)

	if err := repo.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(repo.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	m.Version = Version
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if got.Runs[0].Files[0].Path != "kplr-lcs.fits" {
		t.Errorf("path = %q, want relative", got.Runs[0].Files[0].Path)
	}
}

func TestManifest_Verify(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep")
	edit := filepath.Join(dir, "edit")
	gone := filepath.Join(dir, "gone")
	grow := filepath.Join(dir, "grow")
	for _, p := range []string{keep, edit, gone, grow} {
		writeFile(t, p, "abc")
	}

	run := Run{ID: "r"}
	for _, p := range []string{keep, edit, gone, grow} {
		if err := run.AddFile(p, "history"); err != nil {
			t.Fatal(err)
		}
	}
	m := Manifest{Runs: []Run{run}}
	m.Relativize(dir)

	writeFile(t, edit, "abd")
	writeFile(t, grow, "abcd")
	os.Remove(gone)

	got, err := m.Verify(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []Mismatch{
		{Path: "edit", Reason: "digest differs"},
		{Path: "gone", Reason: "missing"},
		{Path: "grow", Reason: "size 4, want 3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Verify() mismatch (-want +got):\n%s", diff)
	}
}
