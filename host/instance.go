package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/engine"
	"github.com/cwbudde/algo-mixx/plugin"
	"github.com/cwbudde/algo-mixx/scheduler"
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/signal"
	"github.com/cwbudde/algo-mixx/viz"
)

const (
	defaultWidth  = 320
	defaultHeight = 180
)

type mountConfig struct {
	patch  settings.Patch
	source signal.Source
	seed   *uint64
	width  float64
	height float64
}

// MountOption configures one mount.
type MountOption func(*mountConfig)

// WithSettings applies patch on top of the kind's defaults right after mount.
func WithSettings(patch settings.Patch) MountOption {
	return func(c *mountConfig) {
		c.patch = patch
	}
}

// WithSource replaces the synthetic signal source.
func WithSource(src signal.Source) MountOption {
	return func(c *mountConfig) {
		if src != nil {
			c.source = src
		}
	}
}

// WithSeed seeds the instance's bridge.
func WithSeed(seed uint64) MountOption {
	return func(c *mountConfig) {
		c.seed = &seed
	}
}

// WithSize sets the initial canvas size.
func WithSize(width, height float64) MountOption {
	return func(c *mountConfig) {
		c.width, c.height = width, height
	}
}

// Instance is one mounted plugin. Its bridge is only touched under mu, so a
// settings update completed before a tick starts is visible to that tick.
type Instance struct {
	host *Host
	kind plugin.Kind
	desc plugin.Descriptor

	store  *settings.Store
	source signal.Source
	sched  *scheduler.Scheduler

	mu        sync.Mutex
	engine    engine.Engine
	ac        *audio.Context
	bridge    viz.Bridge
	extra     viz.Extra
	unmounted bool

	once sync.Once
}

// Mount creates an instance of kind. Audio kinds share one engine per
// (kind, context) through the host registry; the engine is initialized now if
// the host has a context, otherwise on AttachContext.
func (h *Host) Mount(kind plugin.Kind, opts ...MountOption) (*Instance, error) {
	desc, err := h.catalog.Lookup(kind)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}

	cfg := mountConfig{
		source: defaultSource(kind),
		width:  defaultWidth,
		height: defaultHeight,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	bridgeOpts := []viz.Option{viz.WithLogger(h.logger.With("plugin", string(kind)))}
	if cfg.seed != nil {
		bridgeOpts = append(bridgeOpts, viz.WithSeed(*cfg.seed))
	}

	bridge, err := desc.NewBridge(bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("host: bridge %s: %w", kind, err)
	}

	inst := &Instance{
		host:   h,
		kind:   kind,
		desc:   desc,
		store:  settings.NewStore(settings.New(desc.Defaults)),
		source: cfg.source,
		bridge: bridge,
	}

	bridge.SetParameters(inst.store.Snapshot())

	inst.sched = scheduler.New(inst, h.frames,
		scheduler.WithLogger(h.logger.With("plugin", string(kind))),
		scheduler.WithSize(cfg.width, cfg.height),
		scheduler.WithPublisher(inst.publish),
	)

	h.mu.Lock()
	ac := h.ac

	if desc.HasEngine() {
		eng, err := h.registry.Acquire(string(kind), ac)
		if err != nil {
			h.mu.Unlock()
			return nil, fmt.Errorf("host: %w", err)
		}

		inst.engine, inst.ac = eng, ac

		if ac != nil {
			err = eng.Initialize(ac)
			if err != nil {
				h.mu.Unlock()
				h.registry.Release(string(kind), ac)

				return nil, fmt.Errorf("host: %w", err)
			}
		}
	}

	h.instances[inst] = struct{}{}
	h.mu.Unlock()

	if cfg.patch != nil {
		inst.Update(cfg.patch)
	}

	inst.sched.Start()
	h.logger.Debug("plugin mounted", "plugin", string(kind), "engine", desc.HasEngine())

	return inst, nil
}

// Kind returns the plugin kind.
func (i *Instance) Kind() plugin.Kind {
	return i.kind
}

// Settings returns the current settings snapshot.
func (i *Instance) Settings() settings.Settings {
	return i.store.Snapshot()
}

// Engine returns the shared audio engine, or nil for visual-only kinds.
func (i *Instance) Engine() engine.Engine {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.engine
}

// Update merges patch into the settings, forwards each changed numeric key to
// the engine and hands the whole new snapshot to the bridge. It returns the
// changed keys. Updates after Unmount are dropped.
func (i *Instance) Update(patch settings.Patch) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.unmounted {
		return nil
	}

	next, changed := i.store.Update(patch)
	if len(changed) == 0 {
		return nil
	}

	if i.engine != nil {
		for _, key := range changed {
			if next.Has(key) {
				i.engine.SetParameter(key, next.Num(key, 0))
			}
		}
	}

	i.bridge.SetParameters(next)

	return changed
}

// SetExtra sets the plugin-specific context passed to the bridge.
func (i *Instance) SetExtra(e viz.Extra) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.extra = e
}

// Resize records the canvas size for the next tick.
func (i *Instance) Resize(width, height float64) {
	i.sched.Resize(width, height)
}

// Latest returns the last published visualization data.
func (i *Instance) Latest() viz.Data {
	return i.sched.Latest()
}

// Stats returns the scheduler counters.
func (i *Instance) Stats() scheduler.Stats {
	return i.sched.Stats()
}

// Tick runs one bridge step with the current signal, settings and size.
func (i *Instance) Tick(now time.Duration, width, height float64) (viz.Data, error) {
	sig := i.source.Snapshot(now)

	i.mu.Lock()
	defer i.mu.Unlock()

	return i.bridge.Process(viz.Frame{
		Signal: sig,
		Width:  width,
		Height: height,
		Global: i.host.global.Load(),
		Extra:  i.extra,
	})
}

// Unmount stops the visual loop and releases the engine; the last instance
// using an engine disposes it. Unmount is idempotent.
func (i *Instance) Unmount() {
	i.once.Do(func() {
		i.sched.Stop()

		h := i.host
		h.mu.Lock()
		defer h.mu.Unlock()

		i.mu.Lock()
		i.unmounted = true
		eng, ac := i.engine, i.ac
		i.mu.Unlock()

		if eng != nil {
			h.registry.Release(string(i.kind), ac)
		}

		delete(h.instances, i)
		h.logger.Debug("plugin unmounted", "plugin", string(i.kind))
	})
}

func (i *Instance) bindEngine(eng engine.Engine, ac *audio.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.engine, i.ac = eng, ac
}

func (i *Instance) publish(data viz.Data) {
	if p := i.host.publish; p != nil {
		p(i, data)
	}
}
