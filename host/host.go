// Package host mounts plugins: it pairs each instance's settings with a
// shared audio engine and a private visualization loop, and keeps the two
// in step as settings change.
package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
	"github.com/cwbudde/algo-mixx/plugin"
	"github.com/cwbudde/algo-mixx/scheduler"
	"github.com/cwbudde/algo-mixx/signal"
	"github.com/cwbudde/algo-mixx/viz"
)

// ErrContextBound is returned when a second audio context is attached.
var ErrContextBound = errors.New("host: audio context already attached")

// Publisher receives every published frame of every instance.
type Publisher func(inst *Instance, data viz.Data)

// Option configures a Host.
type Option func(*Host)

// WithContext binds the audio context at construction.
func WithContext(ac *audio.Context) Option {
	return func(h *Host) {
		h.ac = ac
	}
}

// WithLogger sets the logger shared with engines, bridges and schedulers.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCatalog replaces the built-in plugin catalog.
func WithCatalog(c *plugin.Catalog) Option {
	return func(h *Host) {
		if c != nil {
			h.catalog = c
		}
	}
}

// WithFrames sets the frame source every instance's scheduler uses.
func WithFrames(f scheduler.FrameSource) Option {
	return func(h *Host) {
		if f != nil {
			h.frames = f
		}
	}
}

// WithGlobalSettings sets the initial animation settings.
func WithGlobalSettings(g viz.GlobalSettings) Option {
	return func(h *Host) {
		h.global.Store(g)
	}
}

// WithPublisher sets the frame consumer.
func WithPublisher(p Publisher) Option {
	return func(h *Host) {
		h.publish = p
	}
}

// Host owns the engine registry, the global animation settings and the set of
// mounted instances. It is safe for concurrent use.
type Host struct {
	catalog  *plugin.Catalog
	registry *engine.Registry
	global   *viz.GlobalStore
	frames   scheduler.FrameSource
	logger   *slog.Logger
	publish  Publisher

	mu        sync.Mutex
	ac        *audio.Context
	instances map[*Instance]struct{}
}

// New creates a host over the built-in catalog, a 60 Hz timer frame source
// and no audio context unless WithContext is given.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		catalog:   plugin.Default(),
		global:    viz.NewGlobalStore(viz.DefaultGlobalSettings()),
		logger:    slog.New(slog.DiscardHandler),
		instances: make(map[*Instance]struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.frames == nil {
		h.frames = scheduler.NewTimerFrames()
	}

	h.registry = engine.NewRegistry(engine.WithRegistryLogger(h.logger))

	err := h.catalog.Register(h.registry)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}

	return h, nil
}

// Context returns the attached audio context, or nil.
func (h *Host) Context() *audio.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ac
}

// AttachContext binds ac and initializes every engine mounted without one.
func (h *Host) AttachContext(ac *audio.Context) error {
	if ac == nil {
		return errors.New("host: nil audio context")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ac != nil {
		if h.ac == ac {
			return nil
		}

		return ErrContextBound
	}

	h.ac = ac

	var errs []error

	for inst := range h.instances {
		if !inst.desc.HasEngine() {
			continue
		}

		// re-keys the context-less engine in the registry
		eng, err := h.registry.Get(string(inst.kind), ac)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		inst.bindEngine(eng, ac)

		err = eng.Initialize(ac)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SetGlobalSettings updates the animation settings seen by the next tick of
// every instance.
func (h *Host) SetGlobalSettings(g viz.GlobalSettings) {
	h.global.Store(g)
}

// GlobalSettings returns the current animation settings.
func (h *Host) GlobalSettings() viz.GlobalSettings {
	return h.global.Load()
}

// Catalog returns the plugin catalog.
func (h *Host) Catalog() *plugin.Catalog {
	return h.catalog
}

// Engines reports the number of live engines.
func (h *Host) Engines() int {
	return h.registry.Len()
}

// Instances reports the number of mounted instances.
func (h *Host) Instances() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.instances)
}

// Close unmounts every instance.
func (h *Host) Close() {
	h.mu.Lock()
	insts := make([]*Instance, 0, len(h.instances))

	for inst := range h.instances {
		insts = append(insts, inst)
	}
	h.mu.Unlock()

	for _, inst := range insts {
		inst.Unmount()
	}
}

func defaultSource(kind plugin.Kind) signal.Source {
	return signal.NewSynth(signal.WithSeed(viz.SeedFor(string(kind))))
}
