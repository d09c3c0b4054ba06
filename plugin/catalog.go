// Package plugin describes every plugin kind the host can mount: its default
// settings, its audio engine factory (if it has one) and its visualization
// bridge factory.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cwbudde/algo-mixx/engine"
	"github.com/cwbudde/algo-mixx/engine/plugins"
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/viz"
	"github.com/cwbudde/algo-mixx/viz/bridges"
)

var (
	// ErrUnknownKind is returned for kinds missing from the catalog.
	ErrUnknownKind = errors.New("plugin: unknown kind")
	// ErrDuplicateKind is returned when a catalog lists a kind twice.
	ErrDuplicateKind = errors.New("plugin: duplicate kind")
	// ErrIncomplete is returned for descriptors without a bridge factory.
	ErrIncomplete = errors.New("plugin: descriptor needs a bridge factory")
)

// Kind names a plugin.
type Kind string

// Built-in kinds.
const (
	Aura    Kind = plugins.KindAura
	Glue    Kind = plugins.KindGlue
	Limiter Kind = plugins.KindLimiter
	Drive   Kind = plugins.KindDrive
	Delay   Kind = plugins.KindDelay
	Polish  Kind = plugins.KindPolish
	Verb    Kind = plugins.KindVerb
	Clipper Kind = plugins.KindClipper
	Tune    Kind = "tune"
)

// BridgeFactory builds a fresh bridge for one mounted instance.
type BridgeFactory func(opts ...viz.Option) (viz.Bridge, error)

// Descriptor is everything the host needs to mount one kind.
type Descriptor struct {
	Kind     Kind
	Defaults settings.Patch
	// NewEngine is nil for visual-only kinds.
	NewEngine engine.Factory
	NewBridge BridgeFactory
}

// HasEngine reports whether the kind processes audio.
func (d Descriptor) HasEngine() bool {
	return d.NewEngine != nil
}

// Catalog is an immutable set of descriptors.
type Catalog struct {
	byKind map[Kind]Descriptor
}

// NewCatalog validates descriptors and builds a catalog.
func NewCatalog(ds ...Descriptor) (*Catalog, error) {
	c := &Catalog{byKind: make(map[Kind]Descriptor, len(ds))}

	for _, d := range ds {
		if _, ok := c.byKind[d.Kind]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKind, d.Kind)
		}

		if d.NewBridge == nil {
			return nil, fmt.Errorf("%w: %q", ErrIncomplete, d.Kind)
		}

		c.byKind[d.Kind] = d
	}

	return c, nil
}

// Lookup returns the descriptor for kind.
func (c *Catalog) Lookup(kind Kind) (Descriptor, error) {
	d, ok := c.byKind[kind]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return d, nil
}

// Kinds lists the catalog in sorted order.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.byKind))
	for k := range c.byKind {
		kinds = append(kinds, k)
	}

	slices.Sort(kinds)

	return kinds
}

// Register adds the engine factory of every audio kind to r.
func (c *Catalog) Register(r *engine.Registry) error {
	for _, k := range c.Kinds() {
		d := c.byKind[k]
		if !d.HasEngine() {
			continue
		}

		err := r.Register(string(k), d.NewEngine)
		if err != nil {
			return fmt.Errorf("plugin: %w", err)
		}
	}

	return nil
}

// ParseKind validates a kind name against the built-in set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(builtinKinds, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}

	return k, nil
}

var builtinKinds = []Kind{Aura, Glue, Limiter, Clipper, Drive, Delay, Verb, Polish, Tune}

// Default returns the catalog of built-in plugins.
func Default() *Catalog {
	ds := []Descriptor{
		audioKind(Aura, func(l *slog.Logger) engine.Engine { return plugins.NewAura(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewAura(o...), nil }),
		audioKind(Glue, func(l *slog.Logger) engine.Engine { return plugins.NewGlue(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewGlue(o...), nil }),
		audioKind(Limiter, func(l *slog.Logger) engine.Engine { return plugins.NewLimiter(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewLimiter(o...), nil }),
		audioKind(Clipper, func(l *slog.Logger) engine.Engine { return plugins.NewClipper(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewClipper(o...), nil }),
		audioKind(Drive, func(l *slog.Logger) engine.Engine { return plugins.NewDrive(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewDrive(o...), nil }),
		audioKind(Delay, func(l *slog.Logger) engine.Engine { return plugins.NewDelay(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewDelay(o...), nil }),
		audioKind(Verb, func(l *slog.Logger) engine.Engine { return plugins.NewVerb(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewVerb(o...), nil }),
		audioKind(Polish, func(l *slog.Logger) engine.Engine { return plugins.NewPolish(l) },
			func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewPolish(o...) }),
		{
			Kind: Tune,
			Defaults: settings.Patch{
				"retuneSpeed": 50.0,
				"formant":     50.0,
				"humanize":    50.0,
				"emotiveLock": false,
				"mix":         100.0,
				"output":      50.0,
			},
			NewBridge: func(o ...viz.Option) (viz.Bridge, error) { return bridges.NewTune(o...) },
		},
	}

	c, err := NewCatalog(ds...)
	if err != nil {
		panic(err)
	}

	return c
}

// audioKind builds a descriptor with defaults read from the engine's
// parameter table.
func audioKind(kind Kind, build func(*slog.Logger) engine.Engine, bridge BridgeFactory) Descriptor {
	probe := build(slog.New(slog.DiscardHandler))

	defaults := settings.Patch{}
	for _, name := range probe.ParameterNames() {
		defaults[name] = probe.GetParameter(name)
	}

	return Descriptor{
		Kind:      kind,
		Defaults:  defaults,
		NewEngine: func(l *slog.Logger) (engine.Engine, error) { return build(l), nil },
		NewBridge: bridge,
	}
}
