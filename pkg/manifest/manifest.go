package manifest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// Version is the manifest format version written by this package.
const Version = 1

// Manifest lists every export run of one invocation.
type Manifest struct {
	Version int       `json:"version"`
	Option  string    `json:"option"`
	Created time.Time `json:"created"`
	Runs    []Run     `json:"runs"`
}

// Run is one orchestrator run over a cadence range.
type Run struct {
	ID    string `json:"run_id"`
	Start int    `json:"start_cadence"`
	End   int    `json:"end_cadence"`
	Files []File `json:"files"`
}

// File is one produced output file. Path is relative to the manifest's
// directory when the file lives below it.
type File struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Size   int64  `json:"size"`
	Digest string `json:"blake3"`
}

// AddFile digests path and appends it to the run.
func (r *Run) AddFile(path, kind string) error {
	size, digest, err := Digest(path)
	if err != nil {
		return err
	}
	r.Files = append(r.Files, File{Path: path, Kind: kind, Size: size, Digest: digest})
	return nil
}

// Digest returns the size and hex BLAKE3 digest of a file.
func Digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("digest %s: %w", path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Mismatch describes a file whose current content differs from the manifest.
type Mismatch struct {
	Path   string
	Reason string
}

// Verify recomputes every file digest. Relative paths are resolved against dir.
func (m Manifest) Verify(dir string) ([]Mismatch, error) {
	var out []Mismatch
	for _, run := range m.Runs {
		for _, f := range run.Files {
			p := f.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			size, digest, err := Digest(p)
			switch {
			case os.IsNotExist(err):
				out = append(out, Mismatch{Path: f.Path, Reason: "missing"})
			case err != nil:
				return out, err
			case size != f.Size:
				out = append(out, Mismatch{Path: f.Path, Reason: fmt.Sprintf("size %d, want %d", size, f.Size)})
			case digest != f.Digest:
				out = append(out, Mismatch{Path: f.Path, Reason: "digest differs"})
			}
		}
	}
	return out, nil
}

// Relativize rewrites file paths below dir as paths relative to it.
func (m *Manifest) Relativize(dir string) {
	for i := range m.Runs {
		for j := range m.Runs[i].Files {
			f := &m.Runs[i].Files[j]
			rel, err := filepath.Rel(dir, f.Path)
			if err == nil && filepath.IsLocal(rel) {
				f.Path = rel
			}
		}
	}
}
