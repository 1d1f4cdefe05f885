package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// FileName is the manifest's name inside the output directory.
const FileName = "export-manifest.json"

// Repository persists manifests.
type Repository interface {
	// Load returns the saved manifest, or an empty one if none exists.
	Load(ctx context.Context) (Manifest, error)

	// Save persists the manifest atomically.
	Save(ctx context.Context, m Manifest) error
}

// FileRepository implements Repository using a JSON file.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a new FileRepository for the given directory.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Load retrieves the manifest from disk.
// Returns an empty manifest and nil error if no manifest file exists.
func (r *FileRepository) Load(ctx context.Context) (Manifest, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Save writes the manifest to a temp file and renames it into place.
func (r *FileRepository) Save(ctx context.Context, m Manifest) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	if m.Version == 0 {
		m.Version = Version
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the manifest file.
func (r *FileRepository) Path() string {
	return filepath.Join(r.dir, FileName)
}
