// Package scheduler drives a visualization target once per display frame.
package scheduler

import (
	"slices"
	"sync"
	"time"
)

const defaultFrameRate = 60

// FrameID identifies one pending frame request.
type FrameID uint64

// FrameSource delivers one callback per Request, like a display's animation
// frame. now is the time since the source was created.
type FrameSource interface {
	Request(cb func(now time.Duration)) FrameID
	Cancel(id FrameID)
}

// TimerOption configures TimerFrames.
type TimerOption func(*TimerFrames)

// WithFrameRate sets the frame rate in Hz.
func WithFrameRate(hz float64) TimerOption {
	return func(f *TimerFrames) {
		if hz > 0 {
			f.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// TimerFrames fires requests from time.AfterFunc at a fixed frame interval.
type TimerFrames struct {
	mu       sync.Mutex
	interval time.Duration
	epoch    time.Time
	next     FrameID
	timers   map[FrameID]*time.Timer
}

// NewTimerFrames creates a 60 Hz frame source.
func NewTimerFrames(opts ...TimerOption) *TimerFrames {
	f := &TimerFrames{
		interval: time.Second / time.Duration(defaultFrameRate),
		epoch:    time.Now(),
		timers:   make(map[FrameID]*time.Timer),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Interval returns the frame period.
func (f *TimerFrames) Interval() time.Duration {
	return f.interval
}

// Request schedules cb for the next frame.
func (f *TimerFrames) Request(cb func(now time.Duration)) FrameID {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	id := f.next

	f.timers[id] = time.AfterFunc(f.interval, func() {
		f.mu.Lock()
		_, live := f.timers[id]
		delete(f.timers, id)
		f.mu.Unlock()

		if live {
			cb(time.Since(f.epoch))
		}
	})

	return id
}

// Cancel drops a pending request. Unknown or already fired ids are ignored.
func (f *TimerFrames) Cancel(id FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.timers[id]; ok {
		t.Stop()
		delete(f.timers, id)
	}
}

// ManualFrames runs requests only when Fire is called. It drives headless
// runs and tests.
type ManualFrames struct {
	mu      sync.Mutex
	next    FrameID
	pending map[FrameID]func(time.Duration)
}

// NewManualFrames creates an idle manual source.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[FrameID]func(time.Duration))}
}

// Request queues cb until the next Fire.
func (f *ManualFrames) Request(cb func(now time.Duration)) FrameID {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	f.pending[f.next] = cb

	return f.next
}

// Cancel drops a queued request.
func (f *ManualFrames) Cancel(id FrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.pending, id)
}

// Pending reports the number of queued requests.
func (f *ManualFrames) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

// Fire runs every request queued before the call, in request order, and
// returns how many ran. Requests made by the callbacks wait for the next Fire.
func (f *ManualFrames) Fire(now time.Duration) int {
	f.mu.Lock()
	ids := make([]FrameID, 0, len(f.pending))

	for id := range f.pending {
		ids = append(ids, id)
	}

	batch := f.pending
	f.pending = make(map[FrameID]func(time.Duration))
	f.mu.Unlock()

	slices.Sort(ids)

	for _, id := range ids {
		batch[id](now)
	}

	return len(ids)
}
