// Package engine defines the audio engine contract shared by every plugin
// kind and the registry that hands out one engine per (kind, context).
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/cwbudde/algo-mixx/audio"
)

var (
	// ErrUnknownKind is returned when no factory is registered for a kind.
	ErrUnknownKind = errors.New("engine: unknown kind")
	// ErrDuplicateKind is returned when registering a kind twice.
	ErrDuplicateKind = errors.New("engine: duplicate kind")
	// ErrNoContext is returned by operations that need a bound audio context.
	ErrNoContext = errors.New("engine: no audio context")
)

// State is the lifecycle state of an engine.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine owns the processing graph of one plugin instance.
//
// Parameter values are clamped to their declared range and unknown names are
// ignored. A missing context, a second Initialize and calls after Dispose all
// degrade to no-ops.
type Engine interface {
	Kind() string
	Initialize(ac *audio.Context) error
	Bind(ac *audio.Context)
	Dispose()
	SetParameter(name string, value float64)
	GetParameter(name string) float64
	ParameterNames() []string
	ParameterMin(name string) float64
	ParameterMax(name string) float64
	IsActive() bool
	State() State
	Context() *audio.Context
	Input() audio.Node
	Output() audio.Node
}

// ParamSpec declares one engine parameter. A zero range means [0, 100].
type ParamSpec struct {
	Name     string
	Min, Max float64
	Default  float64
}

// Ports is what a builder hands back: the nodes a host patches into the
// context graph and every node the engine owns.
type Ports struct {
	Input  audio.Node
	Output audio.Node
	Nodes  []audio.Node
}

// Values reads the current parameter table while an Apply hook runs.
type Values func(name string) float64

// Hooks are the engine-specific closures driven by Base.
type Hooks struct {
	// Build allocates and wires the graph. On error it returns whatever
	// nodes it already created so they can be disconnected.
	Build func(ac *audio.Context) (Ports, error)
	// Apply pushes one changed parameter into the live graph.
	Apply func(name string, v Values)
	// Reset drops node references after the graph was disconnected.
	Reset func()
}

// Base implements the lifecycle and parameter table for concrete engines.
type Base struct {
	mu sync.Mutex

	kind   string
	specs  []ParamSpec
	index  map[string]int
	values []float64
	hooks  Hooks
	logger *slog.Logger

	state  State
	bound  *audio.Context
	ports  Ports
	builds int
}

// NewBase creates the shared engine core. Specs with an empty range get [0, 100].
func NewBase(kind string, specs []ParamSpec, hooks Hooks, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Base{
		kind:   kind,
		specs:  make([]ParamSpec, len(specs)),
		index:  make(map[string]int, len(specs)),
		values: make([]float64, len(specs)),
		hooks:  hooks,
		logger: logger.With("engine", kind),
	}

	for i, s := range specs {
		if s.Min == 0 && s.Max == 0 {
			s.Max = 100
		}

		s.Default = min(max(s.Default, s.Min), s.Max)
		b.specs[i] = s
		b.index[s.Name] = i
		b.values[i] = s.Default
	}

	return b
}

// Kind returns the plugin kind.
func (b *Base) Kind() string {
	return b.kind
}

// Bind stores ac for a later Initialize(nil). It has no effect on an
// initialized engine.
func (b *Base) Bind(ac *audio.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateActive || b.state == StateInitializing {
		return
	}

	b.bound = ac
}

// Initialize builds the graph on ac (or on the bound context when ac is nil)
// and applies every cached parameter value. Without any context it returns
// nil and stays uninitialized.
func (b *Base) Initialize(ac *audio.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateActive || b.state == StateInitializing {
		return nil
	}

	if ac == nil {
		ac = b.bound
	}

	if ac == nil {
		b.logger.Debug("initialize deferred until a context is bound")
		return nil
	}

	if b.bound != nil && b.bound != ac {
		b.logger.Warn("initialize rebinds engine to a new context")
	}

	b.bound = ac
	prev := b.state
	b.state = StateInitializing

	ports, err := b.hooks.Build(ac)
	if err != nil {
		disconnectAll(ports.Nodes)
		b.state = prev

		if b.hooks.Reset != nil {
			b.hooks.Reset()
		}

		return fmt.Errorf("engine: build %s: %w", b.kind, err)
	}

	b.ports = ports
	b.builds++
	b.state = StateActive

	if b.hooks.Apply != nil {
		for _, s := range b.specs {
			b.hooks.Apply(s.Name, b.lookup)
		}
	}

	b.logger.Debug("engine initialized", "nodes", len(ports.Nodes))

	return nil
}

// Dispose disconnects every owned node. Further calls are no-ops.
func (b *Base) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateActive {
		if b.state == StateUninitialized {
			b.state = StateDisposed
		}

		return
	}

	disconnectAll(b.ports.Nodes)
	b.ports = Ports{}
	b.state = StateDisposed

	if b.hooks.Reset != nil {
		b.hooks.Reset()
	}

	b.logger.Debug("engine disposed")
}

// SetParameter clamps and stores value, pushing it to the graph when active.
func (b *Base) SetParameter(name string, value float64) {
	if math.IsNaN(value) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateDisposed {
		return
	}

	i, ok := b.index[name]
	if !ok {
		return
	}

	s := b.specs[i]
	value = min(max(value, s.Min), s.Max)

	if b.values[i] == value && b.state == StateActive {
		return
	}

	b.values[i] = value

	if b.state == StateActive && b.hooks.Apply != nil {
		b.hooks.Apply(name, b.lookup)
	}
}

// GetParameter returns the cached value, or 0 for unknown names.
func (b *Base) GetParameter(name string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lookup(name)
}

// lookup must be called with mu held.
func (b *Base) lookup(name string) float64 {
	i, ok := b.index[name]
	if !ok {
		return 0
	}

	return b.values[i]
}

// ParameterNames returns the declared names in declaration order.
func (b *Base) ParameterNames() []string {
	names := make([]string, len(b.specs))
	for i, s := range b.specs {
		names[i] = s.Name
	}

	return names
}

// ParameterMin returns the lower bound, or 0 for unknown names.
func (b *Base) ParameterMin(name string) float64 {
	if i, ok := b.index[name]; ok {
		return b.specs[i].Min
	}

	return 0
}

// ParameterMax returns the upper bound, or 100 for unknown names.
func (b *Base) ParameterMax(name string) float64 {
	if i, ok := b.index[name]; ok {
		return b.specs[i].Max
	}

	return 100
}

// IsActive reports whether a graph is built and not yet disposed.
func (b *Base) IsActive() bool {
	return b.State() == StateActive
}

// Inspect runs fn with the engine locked, only while a graph is built. Node
// references set by Build stay valid for the whole call. It reports whether
// fn ran.
func (b *Base) Inspect(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateActive {
		return false
	}

	fn()

	return true
}

// State returns the lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Context returns the bound audio context, if any.
func (b *Base) Context() *audio.Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.bound
}

// Input returns the node a host connects the engine's input to, or nil
// while inactive.
func (b *Base) Input() audio.Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ports.Input
}

// Output returns the node carrying the engine's output, or nil while inactive.
func (b *Base) Output() audio.Node {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ports.Output
}

// Builds returns how many graphs this engine has built over its lifetime.
func (b *Base) Builds() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.builds
}

func disconnectAll(nodes []audio.Node) {
	for _, n := range nodes {
		if n != nil {
			n.Disconnect()
		}
	}
}
