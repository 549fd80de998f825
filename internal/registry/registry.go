// Package registry loads and caches schema definitions. It is the only
// shared mutable state in the core: definitions are read once from disk,
// cached per name for the process lifetime, and only replaced wholesale by
// an explicit reload.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/guillermoBallester/causeway/internal/core/domain"
)

// ErrSchemaLoad wraps every failure to produce a usable schema: missing
// file, malformed JSON, or a structurally invalid definition.
var ErrSchemaLoad = errors.New("schema load failed")

// Registry caches schema definitions by name. Construct one at process start
// and pass it to every consumer; there is no ambient global cache.
type Registry struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*domain.SchemaDefinition
}

// New creates a registry resolving schema names to JSON files under dir.
func New(dir string) *Registry {
	return &Registry{
		dir:   dir,
		cache: make(map[string]*domain.SchemaDefinition),
	}
}

// Load reads, validates, and caches the schema for name. An empty path
// resolves to <dir>/<name>.json; a non-empty path forces a reload from that
// file, replacing the cache slot wholesale. Normal lookups never re-read
// the file.
func (r *Registry) Load(name, path string) (*domain.SchemaDefinition, error) {
	if path == "" {
		r.mu.RLock()
		cached, ok := r.cache[name]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
		path = filepath.Join(r.dir, name+".json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrSchemaLoad, path, err)
	}

	schema, err := domain.ParseSchemaDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSchemaLoad, path, err)
	}

	// Concurrent first loads of the same name may race here; the load is
	// idempotent and this assignment is the only state change.
	r.mu.Lock()
	r.cache[name] = schema
	r.mu.Unlock()

	return schema, nil
}

// Get returns the cached definition for name, loading it from the default
// location on first access.
func (r *Registry) Get(name string) (*domain.SchemaDefinition, error) {
	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return r.Load(name, "")
}
