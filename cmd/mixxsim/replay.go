package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cwbudde/algo-mixx/control"
	"github.com/cwbudde/algo-mixx/host"
	"github.com/cwbudde/algo-mixx/settings"
)

// cue is one control change at a sample offset into the rendered signal.
type cue struct {
	at  int
	msg midi.Message
}

// readCues loads the control changes of a standard MIDI file.
func readCues(path string, rate float64) ([]cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return loadCues(f, rate)
}

// loadCues reads every control change from r, across all tracks, ordered by
// time. Only metric (ticks per quarter) files are supported.
func loadCues(r io.Reader, rate float64) ([]cue, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}

	if _, ok := s.TimeFormat.(smf.MetricTicks); !ok {
		return nil, fmt.Errorf("read midi: unsupported time format %v", s.TimeFormat)
	}

	var cues []cue

	for _, tr := range s.Tracks {
		var abs int64

		for _, ev := range tr {
			abs += int64(ev.Delta)

			msg := midi.Message(ev.Message)

			var ch, cc, val uint8
			if !msg.GetControlChange(&ch, &cc, &val) {
				continue
			}

			us := s.TimeAt(abs)
			cues = append(cues, cue{at: int(float64(us) * rate / 1e6), msg: msg})
		}
	}

	slices.SortStableFunc(cues, func(a, b cue) int { return cmp.Compare(a.at, b.at) })

	return cues, nil
}

// parseBinding reads "[channel/]controller=param[:min:max]" or
// "[channel/]controller=param:toggle". The range defaults to 0..100 and the
// channel to 0.
func parseBinding(s string) (control.Binding, error) {
	var b control.Binding

	src, dst, ok := strings.Cut(s, "=")
	if !ok {
		return b, fmt.Errorf("want [channel/]controller=param[:min:max], got %q", s)
	}

	if ch, cc, ok := strings.Cut(src, "/"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(ch), 10, 8)
		if err != nil {
			return b, fmt.Errorf("binding %q: channel: %w", s, err)
		}

		b.Channel = uint8(n)
		src = cc
	}

	n, err := strconv.ParseUint(strings.TrimSpace(src), 10, 8)
	if err != nil {
		return b, fmt.Errorf("binding %q: controller: %w", s, err)
	}

	b.Controller = uint8(n)

	parts := strings.Split(dst, ":")
	b.Param = strings.TrimSpace(parts[0])
	b.Min, b.Max = 0, 100

	switch len(parts) {
	case 1:
	case 2:
		if strings.TrimSpace(parts[1]) != "toggle" {
			return b, fmt.Errorf("binding %q: want param:toggle or param:min:max", s)
		}

		b.Toggle = true
	case 3:
		b.Min, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return b, fmt.Errorf("binding %q: min: %w", s, err)
		}

		b.Max, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return b, fmt.Errorf("binding %q: max: %w", s, err)
		}
	default:
		return b, fmt.Errorf("binding %q: too many fields", s)
	}

	return b, nil
}

// replayer feeds cues through a control map into one instance. Every bound
// cue is applied before the block it falls in is rendered, so a replay is as
// reproducible as the rest of the run.
type replayer struct {
	cues    []cue
	bound   map[[2]uint8]bool
	msgs    chan midi.Message
	applied chan struct{}
	done    chan error
	cancel  context.CancelFunc
	stopped bool
}

func startReplay(cues []cue, cmap *control.Map, inst *host.Instance) *replayer {
	ctx, cancel := context.WithCancel(context.Background())

	r := &replayer{
		cues:    cues,
		bound:   make(map[[2]uint8]bool),
		msgs:    make(chan midi.Message),
		applied: make(chan struct{}),
		done:    make(chan error, 1),
		cancel:  cancel,
	}

	for _, b := range cmap.Bindings() {
		r.bound[[2]uint8{b.Channel, b.Controller}] = true
	}

	go func() {
		r.done <- cmap.Listen(ctx, r.msgs, func(p settings.Patch) []string {
			changed := inst.Update(p)
			r.applied <- struct{}{}

			return changed
		})
	}()

	return r
}

// advance delivers every cue before sample end. Unbound controllers are
// dropped here since Listen would never apply them.
func (r *replayer) advance(end int) {
	for len(r.cues) > 0 && r.cues[0].at < end {
		msg := r.cues[0].msg
		r.cues = r.cues[1:]

		var ch, cc, val uint8
		if !msg.GetControlChange(&ch, &cc, &val) || !r.bound[[2]uint8{ch, cc}] {
			continue
		}

		r.msgs <- msg
		<-r.applied
	}
}

// stop ends the listener. Later calls are no-ops.
func (r *replayer) stop() error {
	if r.stopped {
		return nil
	}

	r.stopped = true
	close(r.msgs)
	err := <-r.done
	r.cancel()

	return err
}
