package history

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
)

// Registry hands out one ledger per history file name.
type Registry struct {
	cfg *Config

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	cfg.setDefaults()
	return &Registry{cfg: &cfg, ledgers: make(map[string]*Ledger)}
}

// Ledger returns the ledger of name, creating it on first use.
func (r *Registry) Ledger(name string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[name]
	if !ok {
		l = &Ledger{name: name, cfg: r.cfg, ids: make(map[int64]struct{})}
		r.ledgers[name] = l
	}
	return l
}

// Names returns the ledger names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.ledgers))
	for n := range r.ledgers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WriteAll writes every ledger to dir/<name>.
func (r *Registry) WriteAll(ctx context.Context, dir, description string) error {
	for _, name := range r.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Ledger(name).Write(ctx, filepath.Join(dir, name), description); err != nil {
			return err
		}
	}
	return nil
}
