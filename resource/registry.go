package resource

import (
	"sync"

	quiver "github.com/quivergql/quiver"
)

// Registry maps environments to their resource caches with an explicit
// lifecycle: a cache is created alongside its environment on first use and
// discarded with Release. It replaces any notion of a process-wide implicit
// map; the rendering integration owns one registry per process or test.
type Registry struct {
	mu     sync.Mutex
	caches map[*quiver.Environment]*Cache
	opts   []CacheOption
}

// NewRegistry creates a registry whose caches are built with opts.
func NewRegistry(opts ...CacheOption) *Registry {
	return &Registry{caches: make(map[*quiver.Environment]*Cache), opts: opts}
}

// For returns the cache for env, creating it on first use.
func (r *Registry) For(env *quiver.Environment) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[env]; ok {
		return c
	}
	c := NewCache(env, r.opts...)
	r.caches[env] = c
	return c
}

// Release discards env's cache, evicting every entry and canceling
// in-flight fetches. Releasing an unknown environment is a no-op.
func (r *Registry) Release(env *quiver.Environment) {
	r.mu.Lock()
	c, ok := r.caches[env]
	delete(r.caches, env)
	r.mu.Unlock()
	if ok {
		c.Clear()
	}
}
