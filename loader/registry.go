package loader

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Registry keeps loaders keyed by name in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	loaders map[string]Loader
}

// NewRegistry returns registry with loaders registered in order.
func NewRegistry(loaders ...Loader) *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range loaders {
		r.Register(l)
	}
	return r
}

// Register inserts loader or replaces previously registered loader with the
// same name keeping its position.
func (r *Registry) Register(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := l.Name()
	if _, ok := r.loaders[name]; !ok {
		r.order = append(r.order, name)
	}
	r.loaders[name] = l
}

// Replace swaps already registered loader.
func (r *Registry) Replace(l Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaders[l.Name()]; !ok {
		return fmt.Errorf("unable to replace %q: %w", l.Name(), ErrNotRegistered)
	}
	r.loaders[l.Name()] = l
	return nil
}

// Remove deletes loader, pipelines compiled afterwards referencing it fail.
// Removed loader is returned so caller may release its resources.
func (r *Registry) Remove(name string) (Loader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.loaders[name]
	if !ok {
		return nil, false
	}
	delete(r.loaders, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return l, true
}

// Get returns loader by name.
func (r *Registry) Get(name string) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loaders[name]
	return l, ok
}

// Names returns names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns number of registered loaders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// IsSupported reports whether at least one registered loader is able to
// handle path.
func (r *Registry) IsSupported(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.loaders[name].Applies().Supports(path) {
			return true
		}
	}
	return false
}

// Compile resolves every chain entry now, so configuration errors surface
// before any file is processed.
func (r *Registry) Compile(chain UseChain) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(chain) == 0 {
		return nil, &ConfigError{Err: fmt.Errorf("empty use chain: %w", ErrMalformedUse)}
	}

	p := &Pipeline{stages: make([]stage, 0, len(chain))}
	// chain executes outer-to-inner: last declared entry runs first
	for i := len(chain) - 1; i >= 0; i-- {
		use := chain[i]
		l, ok := r.loaders[use.Name]
		if !ok {
			return nil, &ConfigError{Loader: use.Name, Err: ErrUnknownLoader}
		}
		p.stages = append(p.stages, stage{loader: l, options: use.Options})
	}
	return p, nil
}

// Reset lets loaders drop state kept from the previous build.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if rs, ok := r.loaders[name].(Resetter); ok {
			rs.Reset()
		}
	}
}

// Close releases resources held by loaders (compiler processes and such).
func (r *Registry) Close() (err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if c, ok := r.loaders[name].(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
