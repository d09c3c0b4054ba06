package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cwbudde/algo-mixx/audio"
)

// Factory builds one engine instance.
type Factory func(logger *slog.Logger) (Engine, error)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to factories.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

type key struct {
	kind string
	ac   *audio.Context
}

type entry struct {
	engine Engine
	refs   int
}

// Registry memoizes one engine per (kind, audio context). It is safe for
// concurrent use.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	live      map[key]*entry
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		live:      make(map[key]*entry),
		logger:    slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a factory for kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return errors.New("engine: empty kind")
	}

	if factory == nil {
		return errors.New("engine: nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}

	r.factories[kind] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind string, factory Factory) {
	err := r.Register(kind, factory)
	if err != nil {
		panic(err.Error())
	}
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Get returns the engine for (kind, ac), constructing it on first use.
//
// A nil ac yields a context-less handle. A later Get with a real context
// adopts that handle if it is still uninitialized: the context is bound and
// the entry is re-keyed, so both calls observe the same instance.
func (r *Registry) Get(kind string, ac *audio.Context) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(kind, ac)
	if err != nil {
		return nil, err
	}

	return e.engine, nil
}

// Acquire is Get plus a reference held until the matching Release.
func (r *Registry) Acquire(kind string, ac *audio.Context) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(kind, ac)
	if err != nil {
		return nil, err
	}

	e.refs++

	return e.engine, nil
}

// Release drops one reference taken by Acquire. The last release disposes the
// engine and forgets it, so the next Get builds a fresh instance.
func (r *Registry) Release(kind string, ac *audio.Context) {
	r.mu.Lock()

	k := key{kind: kind, ac: ac}

	e, ok := r.live[k]
	if !ok || e.refs == 0 {
		r.mu.Unlock()
		return
	}

	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}

	delete(r.live, k)
	r.mu.Unlock()

	e.engine.Dispose()
	r.logger.Debug("engine released", "kind", kind)
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.live)
}

// lookup must be called with mu held.
func (r *Registry) lookup(kind string, ac *audio.Context) (*entry, error) {
	k := key{kind: kind, ac: ac}
	if e, ok := r.live[k]; ok {
		return e, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if ac != nil {
		orphan := key{kind: kind}
		if e, ok := r.live[orphan]; ok && e.engine.State() == StateUninitialized {
			e.engine.Bind(ac)
			delete(r.live, orphan)
			r.live[k] = e
			r.logger.Debug("engine adopted context", "kind", kind)

			return e, nil
		}
	}

	eng, err := factory(r.logger)
	if err != nil {
		return nil, fmt.Errorf("engine: construct %s: %w", kind, err)
	}

	e := &entry{engine: eng}
	r.live[k] = e

	return e, nil
}
