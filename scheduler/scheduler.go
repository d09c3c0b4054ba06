package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/algo-mixx/viz"
)

// ErrPanic wraps a panic recovered from a tick.
var ErrPanic = errors.New("scheduler: tick panicked")

// Target produces the visualization data for one tick. It reads the current
// settings and signal itself, so nothing is captured at scheduling time.
type Target interface {
	Tick(now time.Duration, width, height float64) (viz.Data, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(now time.Duration, width, height float64) (viz.Data, error)

// Tick calls fn.
func (fn TargetFunc) Tick(now time.Duration, width, height float64) (viz.Data, error) {
	return fn(now, width, height)
}

// Publisher receives the data of every successful tick.
type Publisher func(viz.Data)

// Stats counts tick outcomes.
type Stats struct {
	Ticks  uint64
	Errors uint64
	Panics uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for failed ticks.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher sets the publish callback.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) {
		s.publish = p
	}
}

// WithSize sets the initial canvas size.
func WithSize(width, height float64) Option {
	return func(s *Scheduler) {
		s.width, s.height = width, height
	}
}

// Scheduler runs Target once per frame from a FrameSource, re-arming after
// every tick. A failing or panicking tick is logged and skipped; the previous
// data stays published.
//
// Publishers and targets must not call Stop; Stop waits for the running tick.
type Scheduler struct {
	target Target
	frames FrameSource
	logger *slog.Logger

	// tickMu serializes ticks against Stop.
	tickMu sync.Mutex

	mu      sync.Mutex
	publish Publisher
	running bool
	gen     uint64
	pending FrameID
	width   float64
	height  float64
	latest  viz.Data
	stats   Stats
}

// New creates a stopped scheduler.
func New(target Target, frames FrameSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		target: target,
		frames: frames,
		logger: slog.New(slog.DiscardHandler),
		width:  1,
		height: 1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start arms the first frame. Starting a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.gen++
	s.pending = s.frames.Request(s.callback(s.gen))
}

// Stop cancels the pending frame and waits for a running tick to finish.
// No tick starts after Stop returns. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		s.frames.Cancel(s.pending)
	}
	s.mu.Unlock()

	s.tickMu.Lock()
	defer s.tickMu.Unlock()
}

// Running reports whether the loop is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Resize records the canvas size read by the next tick.
func (s *Scheduler) Resize(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.width, s.height = width, height
}

// Latest returns the data of the last successful tick, or nil.
func (s *Scheduler) Latest() viz.Data {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest
}

// Stats returns the tick counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

func (s *Scheduler) callback(gen uint64) func(time.Duration) {
	return func(now time.Duration) {
		s.tickMu.Lock()
		defer s.tickMu.Unlock()

		s.mu.Lock()
		if !s.running || gen != s.gen {
			s.mu.Unlock()
			return
		}

		width, height := s.width, s.height
		s.mu.Unlock()

		data, err := s.run(now, width, height)

		s.mu.Lock()
		s.stats.Ticks++

		switch {
		case errors.Is(err, ErrPanic):
			s.stats.Panics++
		case err != nil:
			s.stats.Errors++
		default:
			s.latest = data
		}

		if s.running && gen == s.gen {
			s.pending = s.frames.Request(s.callback(gen))
		}

		publish := s.publish
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("scheduler: tick failed", "now", now, "err", err)
			return
		}

		if publish != nil {
			publish(data)
		}
	}
}

func (s *Scheduler) run(now time.Duration, width, height float64) (data viz.Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return s.target.Tick(now, width, height)
}
