package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Registry errors.
var (
	// ErrNotRegistered is returned when an event type is not in the taxonomy.
	ErrNotRegistered = errors.New("catalog: event type not registered")

	// ErrInvalidName is returned when a type name is not "<domain>.<verb>".
	ErrInvalidName = errors.New("catalog: invalid event type name")
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9_]*)+$`)

// Registry is the in-memory closed taxonomy. Types are registered once at
// process startup; lookups are read-mostly and safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty taxonomy registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds an event type to the taxonomy. Re-registering an existing
// name replaces its definition, which is how schema versions evolve.
func (r *Registry) Register(def Definition) (*Definition, error) {
	if !nameRe.MatchString(def.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, def.Name)
	}
	if def.Aggregate == "" {
		def.Aggregate = def.Domain()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := def
	r.defs[d.Name] = &d
	return &d, nil
}

// MustRegister is like Register but panics on error. Use for the built-in
// taxonomy, whose definitions are known-good.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if _, err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition for an event type name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return def, nil
}

// List returns all registered definitions sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Deprecate marks an event type as no longer publishable. Stored events of
// the type remain valid; only new publishes are rejected.
func (r *Registry) Deprecate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	now := time.Now().UTC()
	def.Deprecated = true
	def.DeprecatedAt = &now
	return nil
}
