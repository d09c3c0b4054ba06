// Command mixxsim runs one plugin offline: it renders a synthetic beat
// through the plugin's audio engine, meters the output and prints the
// visualization frames as JSON lines.
//
// Usage:
//
//	mixxsim [flags]
//
// Examples:
//
//	mixxsim -plugin glue -seconds 2
//	mixxsim -plugin aura -set width=90 -set shine=70 -every 10
//	mixxsim -plugin tune -pitch 440 -complexity low
//	mixxsim -plugin verb -midi knobs.mid -bind 1=size -bind 2=damping
//	mixxsim -list
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/algo-vecmath/cpu"

	"github.com/cwbudde/algo-mixx/audio"
	"github.com/cwbudde/algo-mixx/control"
	"github.com/cwbudde/algo-mixx/host"
	"github.com/cwbudde/algo-mixx/plugin"
	"github.com/cwbudde/algo-mixx/scheduler"
	"github.com/cwbudde/algo-mixx/settings"
	"github.com/cwbudde/algo-mixx/signal"
	"github.com/cwbudde/algo-mixx/viz"
)

type config struct {
	kind       string
	seconds    float64
	rate       float64
	block      int
	fps        float64
	every      int
	seed       uint64
	tempo      float64
	pitch      float64
	intensity  float64
	complexity string
	patch      settings.Patch
	midi       string
	bindings   []control.Binding
}

const (
	maxTempo = 600.0
	// tapSize is the analyser window behind the meter history: long enough
	// for a 70 Hz period after the meter's decimation.
	tapSize = 4096
)

// frameRecord is one line of output.
type frameRecord struct {
	Time   float64  `json:"time"`
	Plugin string   `json:"plugin"`
	Data   viz.Data `json:"data"`
}

func main() {
	cfg := config{patch: settings.Patch{}}

	flag.StringVar(&cfg.kind, "plugin", string(plugin.Aura), "plugin kind to run")
	flag.Float64Var(&cfg.seconds, "seconds", 1, "length of the rendered signal")
	flag.Float64Var(&cfg.rate, "rate", 48000, "sample rate in Hz")
	flag.IntVar(&cfg.block, "block", 128, "render block size in frames")
	flag.Float64Var(&cfg.fps, "fps", 60, "visual frame rate")
	flag.IntVar(&cfg.every, "every", 1, "print every Nth frame")
	flag.Uint64Var(&cfg.seed, "seed", 1, "bridge random seed")
	flag.Float64Var(&cfg.tempo, "tempo", 120, "beat tempo in BPM")
	flag.Float64Var(&cfg.pitch, "pitch", 220, "tone pitch in Hz")
	flag.Float64Var(&cfg.intensity, "intensity", 50, "animation intensity 0..100")
	flag.StringVar(&cfg.complexity, "complexity", string(viz.ComplexityHigh), "visual complexity (low, high)")
	flag.Func("set", "plugin setting as key=value (repeatable)", func(s string) error {
		return parseSetting(cfg.patch, s)
	})
	flag.StringVar(&cfg.midi, "midi", "", "standard MIDI file whose control changes are replayed")
	flag.Func("bind", "controller binding for -midi as [channel/]cc=param[:min:max] or cc=param:toggle (repeatable)", func(s string) error {
		b, err := parseBinding(s)
		if err != nil {
			return err
		}

		cfg.bindings = append(cfg.bindings, b)

		return nil
	})

	list := flag.Bool("list", false, "list plugin kinds and exit")
	generic := flag.Bool("generic", false, "force the pure-Go vector kernels")
	debug := flag.Bool("debug", false, "enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mixxsim [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Renders a synthetic beat through one plugin and prints its\n")
		fmt.Fprintf(os.Stderr, "visualization frames as JSON lines on stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mixxsim -plugin glue -seconds 2\n")
		fmt.Fprintf(os.Stderr, "  mixxsim -plugin aura -set width=90 -every 10\n")
		fmt.Fprintf(os.Stderr, "  mixxsim -plugin verb -midi knobs.mid -bind 1=size\n")
		fmt.Fprintf(os.Stderr, "  mixxsim -list\n")
	}
	flag.Parse()

	if *list {
		for _, k := range plugin.Default().Kinds() {
			fmt.Println(k)
		}

		return
	}

	logger := initLogger(*debug)

	if *generic {
		cpu.SetForcedFeatures(cpu.Features{ForceGeneric: true, Architecture: runtime.GOARCH})
	}

	f := cpu.DetectFeatures()
	logger.Debug("cpu features",
		"arch", f.Architecture,
		"sse2", f.HasSSE2,
		"avx2", f.HasAVX2,
		"generic", f.ForceGeneric,
	)

	err := run(cfg, os.Stdout, logger)
	if err != nil {
		slog.Error("mixxsim failed", "err", err)
		os.Exit(1)
	}
}

func initLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
	slog.SetDefault(logger)

	return logger
}

// parseSetting adds one key=value pair to patch. Values parse as numbers,
// then booleans, then fall back to strings.
func parseSetting(patch settings.Patch, s string) error {
	key, raw, ok := strings.Cut(s, "=")

	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}

	raw = strings.TrimSpace(raw)

	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		patch[key] = v
		return nil
	}

	if v, err := strconv.ParseBool(raw); err == nil {
		patch[key] = v
		return nil
	}

	patch[key] = raw

	return nil
}

func (c config) validate() error {
	switch {
	case c.seconds <= 0:
		return fmt.Errorf("seconds must be positive, got %v", c.seconds)
	case c.fps <= 0:
		return fmt.Errorf("fps must be positive, got %v", c.fps)
	case c.every < 1:
		return fmt.Errorf("every must be at least 1, got %d", c.every)
	case !(c.tempo > 0) || !(c.pitch > 0):
		return errors.New("tempo and pitch must be positive")
	case c.tempo > maxTempo:
		return fmt.Errorf("tempo must be at most %v BPM, got %v", maxTempo, c.tempo)
	case c.midi != "" && len(c.bindings) == 0:
		return errors.New("midi replay needs at least one -bind")
	}

	return nil
}

// run renders cfg.seconds of input block by block. Visual frames fire on a
// manual clock derived from the rendered sample count, so output is
// reproducible for a given seed.
func run(cfg config, w io.Writer, logger *slog.Logger) error {
	err := cfg.validate()
	if err != nil {
		return err
	}

	kind, err := plugin.ParseKind(cfg.kind)
	if err != nil {
		return err
	}

	ac, err := audio.NewContext(
		audio.WithSampleRate(cfg.rate),
		audio.WithBlockSize(cfg.block),
		audio.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var (
		enc       = json.NewEncoder(w)
		published int
		encodeErr error
	)

	frames := scheduler.NewManualFrames()

	h, err := host.New(
		host.WithContext(ac),
		host.WithLogger(logger),
		host.WithFrames(frames),
		host.WithGlobalSettings(viz.GlobalSettings{
			AnimationIntensity: cfg.intensity,
			Complexity:         viz.Complexity(cfg.complexity),
		}),
		host.WithPublisher(func(inst *host.Instance, data viz.Data) {
			published++
			if encodeErr != nil || published%cfg.every != 0 {
				return
			}

			encodeErr = enc.Encode(frameRecord{
				Time:   ac.CurrentTime(),
				Plugin: string(inst.Kind()),
				Data:   data,
			})
		}),
	)
	if err != nil {
		return err
	}
	defer h.Close()

	tap, err := audio.NewAnalyser(ac, tapSize)
	if err != nil {
		return err
	}

	meter := signal.NewMeter(cfg.rate, signal.WithTap(tap))

	inst, err := h.Mount(kind,
		host.WithSettings(cfg.patch),
		host.WithSource(meter),
		host.WithSeed(cfg.seed),
	)
	if err != nil {
		return err
	}

	err = wire(ac, inst, tap)
	if err != nil {
		return err
	}

	var replay *replayer

	if cfg.midi != "" {
		replay, err = newReplay(cfg, inst, logger)
		if err != nil {
			return err
		}
		defer func() { _ = replay.stop() }()
	}

	logger.Info("rendering", "plugin", string(kind), "seconds", cfg.seconds, "rate", cfg.rate)

	var (
		src    = newBeat(cfg.rate, cfg.tempo, cfg.pitch)
		total  = int(cfg.seconds * cfg.rate)
		period = time.Duration(float64(time.Second) / cfg.fps)
		next   time.Duration
		in     = [][]float64{make([]float64, cfg.block), make([]float64, cfg.block)}
		out    = [][]float64{make([]float64, cfg.block), make([]float64, cfg.block)}
	)

	for done := 0; done < total; done += cfg.block {
		if replay != nil {
			replay.advance(done + cfg.block)
		}

		src.fill(in[0], in[1])

		err = ac.Render(in, out)
		if err != nil {
			return err
		}

		meter.Observe(out)

		now := time.Duration(float64(done+cfg.block) / cfg.rate * float64(time.Second))
		for ; next <= now; next += period {
			frames.Fire(next)
		}

		if encodeErr != nil {
			return fmt.Errorf("write frame: %w", encodeErr)
		}
	}

	if replay != nil {
		err = replay.stop()
		if err != nil {
			return fmt.Errorf("midi replay: %w", err)
		}
	}

	st := inst.Stats()
	logger.Info("done", "ticks", st.Ticks, "errors", st.Errors, "panics", st.Panics, "printed", published/cfg.every)

	return nil
}

// wire routes the context input through the instance's engine, or straight
// through for visual-only kinds, and then through tap to the destination.
func wire(ac *audio.Context, inst *host.Instance, tap *audio.Analyser) error {
	err := audio.Connect(tap, ac.Destination())
	if err != nil {
		return fmt.Errorf("connect tap: %w", err)
	}

	eng := inst.Engine()
	if eng == nil {
		return audio.Connect(ac.Source(), tap)
	}

	err = audio.Connect(ac.Source(), eng.Input())
	if err != nil {
		return fmt.Errorf("connect engine input: %w", err)
	}

	err = audio.Connect(eng.Output(), tap)
	if err != nil {
		return fmt.Errorf("connect engine output: %w", err)
	}

	return nil
}

// newReplay loads cfg.midi and starts feeding its control changes into inst
// through the configured bindings.
func newReplay(cfg config, inst *host.Instance, logger *slog.Logger) (*replayer, error) {
	cues, err := readCues(cfg.midi, cfg.rate)
	if err != nil {
		return nil, err
	}

	cmap := control.NewMap(control.WithLogger(logger))

	for _, b := range cfg.bindings {
		err = cmap.Bind(b)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("replaying midi", "file", cfg.midi, "cues", len(cues), "bindings", len(cfg.bindings))

	return startReplay(cues, cmap, inst), nil
}

// beat is a decaying kick on every beat under a steady tone, with the tone
// panned slightly right so stereo plugins have something to work with.
type beat struct {
	rate, pitch float64
	beatLen     int
	pos         int
}

func newBeat(rate, tempo, pitch float64) *beat {
	return &beat{
		rate:    rate,
		pitch:   pitch,
		beatLen: max(int(rate*60/tempo), 1),
	}
}

func (b *beat) fill(left, right []float64) {
	for i := range left {
		t := float64(b.pos) / b.rate
		since := float64(b.pos%b.beatLen) / b.rate

		kick := 0.7 * math.Exp(-since*18) * math.Sin(2*math.Pi*(50+120*math.Exp(-since*30))*since)
		tone := 0.25 * math.Sin(2*math.Pi*b.pitch*t)

		left[i] = kick + 0.8*tone
		right[i] = kick + tone
		b.pos++
	}
}
