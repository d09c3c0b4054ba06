// Package control turns MIDI control-change messages into settings patches,
// so hardware knobs drive plugin parameters through the same path as the UI.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-mixx/settings"
)

// ErrInvalidBinding is returned by Bind for out-of-range bindings.
var ErrInvalidBinding = errors.New("control: invalid binding")

const ccMax = 127

// Binding maps one controller on one channel onto a parameter range.
// Toggle bindings switch at CC value 64.
type Binding struct {
	Channel    uint8
	Controller uint8
	Param      string
	Min, Max   float64
	Toggle     bool
}

func (b Binding) validate() error {
	switch {
	case b.Channel > 15:
		return fmt.Errorf("%w: channel %d", ErrInvalidBinding, b.Channel)
	case b.Controller > ccMax:
		return fmt.Errorf("%w: controller %d", ErrInvalidBinding, b.Controller)
	case b.Param == "":
		return fmt.Errorf("%w: empty parameter", ErrInvalidBinding)
	case !b.Toggle && (b.Min == b.Max || math.IsNaN(b.Min) || math.IsNaN(b.Max)):
		return fmt.Errorf("%w: %s range [%v, %v]", ErrInvalidBinding, b.Param, b.Min, b.Max)
	}

	return nil
}

// Value scales a 7-bit CC value onto the binding's range.
func (b Binding) Value(cc uint8) any {
	if b.Toggle {
		return cc >= 64
	}

	return b.Min + (b.Max-b.Min)*float64(min(cc, ccMax))/ccMax
}

// CC is the inverse of Value for a numeric setting.
func (b Binding) CC(v float64) uint8 {
	if b.Toggle {
		if v >= 0.5 {
			return ccMax
		}

		return 0
	}

	t := (v - b.Min) / (b.Max - b.Min)

	return uint8(math.Round(math.Min(math.Max(t, 0), 1) * ccMax))
}

type slot struct {
	channel, controller uint8
}

// Option configures a Map.
type Option func(*Map)

// WithLogger sets the logger for learn events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Map) {
		if l != nil {
			m.logger = l
		}
	}
}

// Map holds the active bindings. It is safe for concurrent use.
type Map struct {
	mu       sync.Mutex
	bindings map[slot]Binding
	learn    *Binding
	logger   *slog.Logger
}

// NewMap creates an empty map.
func NewMap(opts ...Option) *Map {
	m := &Map{
		bindings: make(map[slot]Binding),
		logger:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Bind adds or replaces the binding for b's channel and controller.
func (m *Map) Bind(b Binding) error {
	err := b.validate()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bindings[slot{b.Channel, b.Controller}] = b

	return nil
}

// Unbind removes a binding.
func (m *Map) Unbind(channel, controller uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.bindings, slot{channel, controller})
}

// Bindings lists the bindings ordered by channel, then controller.
func (m *Map) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}

	slices.SortFunc(out, func(a, b Binding) int {
		if a.Channel != b.Channel {
			return int(a.Channel) - int(b.Channel)
		}

		return int(a.Controller) - int(b.Controller)
	})

	return out
}

// Learn binds the next control change Translate sees to template.Param;
// the template's channel and controller are ignored.
func (m *Map) Learn(template Binding) error {
	template.Channel, template.Controller = 0, 0

	err := template.validate()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.learn = &template

	return nil
}

// CancelLearn drops a pending Learn.
func (m *Map) CancelLearn() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.learn = nil
}

// Learning returns the parameter waiting for a controller, if any.
func (m *Map) Learning() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.learn == nil {
		return "", false
	}

	return m.learn.Param, true
}

// Translate converts a control change into a one-key patch. Other messages
// and unbound controllers report false.
func (m *Map) Translate(msg midi.Message) (settings.Patch, bool) {
	var ch, cc, val uint8
	if !msg.GetControlChange(&ch, &cc, &val) {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot{ch, cc}

	if m.learn != nil {
		b := *m.learn
		b.Channel, b.Controller = ch, cc
		m.bindings[key] = b
		m.learn = nil

		m.logger.Info("midi learn", "param", b.Param, "channel", ch, "controller", cc)
	}

	b, ok := m.bindings[key]
	if !ok {
		return nil, false
	}

	return settings.Patch{b.Param: b.Value(val)}, true
}

// Feedback renders the bound parameters of s as control changes, for
// controllers with motorized faders or LED rings.
func (m *Map) Feedback(s settings.Settings) []midi.Message {
	var out []midi.Message

	for _, b := range m.Bindings() {
		if !s.Has(b.Param) {
			continue
		}

		out = append(out, midi.ControlChange(b.Channel, b.Controller, b.CC(s.Num(b.Param, 0))))
	}

	return out
}

// Listen translates messages from in and passes each patch to apply until ctx
// is done or in is closed.
func (m *Map) Listen(ctx context.Context, in <-chan midi.Message, apply func(settings.Patch) []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}

			patch, ok := m.Translate(msg)
			if !ok {
				continue
			}

			changed := apply(patch)
			m.logger.Debug("midi patch", "patch", patch, "changed", changed)
		}
	}
}
