package export

import (
	"sort"
	"sync"

	"github.com/bft-labs/pixport/internal/domain"
)

// Registry holds the output files of one run ordered by (category, cadence).
type Registry struct {
	mu    sync.RWMutex
	files []*OutputFileInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers f in sorted position.
func (r *Registry) Add(f *OutputFileInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.files), func(i int) bool { return less(f, r.files[i]) })
	r.files = append(r.files, nil)
	copy(r.files[i+1:], r.files[i:])
	r.files[i] = f
}

func less(a, b *OutputFileInfo) bool {
	if a.Header.Category != b.Header.Category {
		return a.Header.Category < b.Header.Category
	}
	return a.Header.Cadence < b.Header.Cadence
}

// Files returns every registered file in order.
func (r *Registry) Files() []*OutputFileInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*OutputFileInfo(nil), r.files...)
}

// ForType returns the files of one cadence type in order.
func (r *Registry) ForType(t domain.CadenceType) []*OutputFileInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*OutputFileInfo
	for _, f := range r.files {
		if f.Header.Category.CadenceType() == t {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of registered files.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}
