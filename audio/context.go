// Package audio is a small declarative node-graph layer: engines allocate
// nodes on a Context, wire them with Connect, and automate their parameters.
// Rendering happens block by block through Context.Render, typically from a
// device callback running on its own goroutine.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

const (
	defaultSampleRate = 48000.0
	defaultBlockSize  = 128

	minBlockSize = 16
	maxBlockSize = 8192
)

var (
	// ErrGraphCycle is returned when the connections form a loop that does
	// not pass through a Delay node.
	ErrGraphCycle = errors.New("audio: graph contains a cycle without a delay")
	// ErrForeignNode is returned when connecting nodes owned by different contexts.
	ErrForeignNode = errors.New("audio: node belongs to a different context")
	// ErrDetached is returned when connecting a node that was disconnected.
	ErrDetached = errors.New("audio: node is detached")
	// ErrPort is returned for an out-of-range input or output index.
	ErrPort = errors.New("audio: port index out of range")
)

// ContextOption mutates context construction parameters.
type ContextOption func(*contextConfig) error

type contextConfig struct {
	sampleRate float64
	blockSize  int
	logger     *slog.Logger
}

// WithSampleRate sets the context sample rate in Hz.
func WithSampleRate(sr float64) ContextOption {
	return func(cfg *contextConfig) error {
		if sr <= 0 || math.IsNaN(sr) || math.IsInf(sr, 0) {
			return fmt.Errorf("audio: sample rate must be > 0 and finite: %f", sr)
		}

		cfg.sampleRate = sr

		return nil
	}
}

// WithBlockSize sets the nominal render quantum in frames.
func WithBlockSize(n int) ContextOption {
	return func(cfg *contextConfig) error {
		if n < minBlockSize || n > maxBlockSize {
			return fmt.Errorf("audio: block size must be in [%d, %d]: %d", minBlockSize, maxBlockSize, n)
		}

		cfg.blockSize = n

		return nil
	}
}

// WithLogger sets the logger used for graph diagnostics.
func WithLogger(l *slog.Logger) ContextOption {
	return func(cfg *contextConfig) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	}
}

// Context owns one node graph and its render clock.
type Context struct {
	mu sync.Mutex

	sampleRate float64
	blockSize  int
	logger     *slog.Logger

	frame atomic.Int64

	nextID int
	nodes  map[int]*nodeCore
	edges  []edge

	dirty    bool
	order    []*nodeCore
	deferred []*nodeCore

	source      *Source
	destination *Destination
}

// NewContext creates a context with a stereo source and destination.
func NewContext(opts ...ContextOption) (*Context, error) {
	cfg := contextConfig{
		sampleRate: defaultSampleRate,
		blockSize:  defaultBlockSize,
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	ac := &Context{
		sampleRate: cfg.sampleRate,
		blockSize:  cfg.blockSize,
		logger:     cfg.logger,
		nodes:      make(map[int]*nodeCore),
		dirty:      true,
	}

	ac.source = newSource(ac)
	ac.destination = newDestination(ac)

	return ac, nil
}

// SampleRate returns the context sample rate in Hz.
func (ac *Context) SampleRate() float64 {
	return ac.sampleRate
}

// BlockSize returns the nominal render quantum.
func (ac *Context) BlockSize() int {
	return ac.blockSize
}

// CurrentTime returns the render clock in seconds.
func (ac *Context) CurrentTime() float64 {
	return float64(ac.frame.Load()) / ac.sampleRate
}

// Source returns the node that emits the input passed to Render.
func (ac *Context) Source() *Source {
	return ac.source
}

// Destination returns the node whose input becomes the output of Render.
func (ac *Context) Destination() *Destination {
	return ac.destination
}

// NodeCount returns the number of attached nodes, including source and destination.
func (ac *Context) NodeCount() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	return len(ac.nodes)
}

// Render processes one block. in may be nil for silence; the block length is
// taken from out, which must hold at least one channel.
func (ac *Context) Render(in, out [][]float64) error {
	if len(out) == 0 || len(out[0]) == 0 {
		return errors.New("audio: render needs at least one output channel")
	}

	frames := len(out[0])

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.dirty {
		err := ac.compile()
		if err != nil {
			return err
		}
	}

	ac.source.feed(in, frames)

	t0 := ac.CurrentTime()
	for _, n := range ac.order {
		if n.isDeferred {
			n.out = n.kernel.(deferrable).renderDeferred(frames, t0)
			continue
		}

		n.out = n.kernel.render(ac.gather(n, frames), frames, t0)
	}

	for _, n := range ac.deferred {
		n.kernel.(deferrable).commit(ac.gather(n, frames), frames)
	}

	ac.destination.drain(out, frames)
	ac.frame.Add(int64(frames))

	return nil
}
