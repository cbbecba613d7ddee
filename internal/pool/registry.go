package pool

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry owns every pool of a process, keyed by asset pair and seed.
type Registry struct {
	mu    sync.RWMutex
	deps  Deps
	pools map[Key]*Pool
}

// NewRegistry creates an empty registry whose pools share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:  deps.withDefaults(),
		pools: make(map[Key]*Pool),
	}
}

// InitializePool creates a pool from cfg. A second call for the same key fails
// with ErrAlreadyInitialized.
func (r *Registry) InitializePool(cfg Config) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cfg.Key()
	if _, ok := r.pools[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, key)
	}
	p, err := New(cfg, r.deps)
	if err != nil {
		return nil, err
	}
	r.pools[key] = p
	r.deps.Logger.Info("pool registered", zap.Stringer("key", key), zap.String("pool", p.ID().Hex()))
	return p, nil
}

// Register adds an existing pool, typically one rebuilt by Restore.
func (r *Registry) Register(p *Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[p.key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, p.key)
	}
	r.pools[p.key] = p
	return nil
}

// Get returns the pool for key.
func (r *Registry) Get(key Key) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key]
	return p, ok
}

// Pools returns every pool ordered by id.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].id[:], out[j].id[:]) < 0
	})
	return out
}

// Deps returns the collaborators handed to pools created by the registry.
func (r *Registry) Deps() Deps {
	return r.deps
}
