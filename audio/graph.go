package audio

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-vecmath"
)

// Bus is a multi-channel block of samples, indexed [channel][frame].
type Bus [][]float64

// Channels returns the channel count.
func (b Bus) Channels() int {
	return len(b)
}

// Node is any processing unit attached to a Context.
type Node interface {
	Context() *Context
	NumberOfInputs() int
	NumberOfOutputs() int
	// Disconnect removes every connection touching the node and detaches it
	// from the graph. Calling it again is a no-op.
	Disconnect()
	core() *nodeCore
}

// kernel is the per-node processing contract used by the renderer.
type kernel interface {
	render(in []Bus, frames int, t0 float64) []Bus
}

// deferrable kernels may break feedback cycles: their output for a block is
// produced before their input for the same block is known.
type deferrable interface {
	kernel
	renderDeferred(frames int, t0 float64) []Bus
	commit(in []Bus, frames int)
}

type edge struct {
	from, to *nodeCore
	output   int
	input    int
}

type nodeCore struct {
	ac      *Context
	id      int
	kind    string
	inputs  int
	outputs int

	// inChannels fixes the channel count of every input; 0 follows the
	// widest incoming connection.
	inChannels int

	kernel     kernel
	attached   bool
	isDeferred bool

	out []Bus
	mix []Bus
}

func (n *nodeCore) Context() *Context    { return n.ac }
func (n *nodeCore) NumberOfInputs() int  { return n.inputs }
func (n *nodeCore) NumberOfOutputs() int { return n.outputs }
func (n *nodeCore) core() *nodeCore      { return n }

func (n *nodeCore) Disconnect() {
	ac := n.ac

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if !n.attached {
		return
	}

	n.attached = false
	ac.edges = slices.DeleteFunc(ac.edges, func(e edge) bool {
		return e.from == n || e.to == n
	})
	delete(ac.nodes, n.id)
	ac.dirty = true
}

func (ac *Context) attach(kind string, inputs, outputs, inChannels int, k kernel) *nodeCore {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.nextID++
	n := &nodeCore{
		ac:         ac,
		id:         ac.nextID,
		kind:       kind,
		inputs:     inputs,
		outputs:    outputs,
		inChannels: inChannels,
		kernel:     k,
		attached:   true,
	}
	ac.nodes[n.id] = n
	ac.dirty = true

	return n
}

// Connect wires output 0 of src to input 0 of dst.
func Connect(src, dst Node) error {
	return ConnectPort(src, 0, dst, 0)
}

// ConnectPort wires output port of src to input port of dst. Connecting the
// same pair twice is a no-op.
func ConnectPort(src Node, output int, dst Node, input int) error {
	s, d := src.core(), dst.core()
	if s.ac != d.ac {
		return ErrForeignNode
	}

	if output < 0 || output >= s.outputs {
		return fmt.Errorf("%w: %s output %d", ErrPort, s.kind, output)
	}

	if input < 0 || input >= d.inputs {
		return fmt.Errorf("%w: %s input %d", ErrPort, d.kind, input)
	}

	ac := s.ac

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if !s.attached || !d.attached {
		return ErrDetached
	}

	e := edge{from: s, to: d, output: output, input: input}
	if slices.Contains(ac.edges, e) {
		return nil
	}

	ac.edges = append(ac.edges, e)
	ac.dirty = true

	return nil
}

// compile sorts the attached nodes (Kahn's algorithm). When a cycle remains,
// delay nodes inside it are deferred and the sort is retried; a cycle with no
// delay left to defer is an error. Must be called with ac.mu held.
func (ac *Context) compile() error {
	ids := make([]int, 0, len(ac.nodes))
	for id := range ac.nodes {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		ac.nodes[id].isDeferred = false
	}

	for {
		order, rest := ac.sortOnce(ids)
		if len(rest) == 0 {
			ac.order = order
			ac.deferred = ac.deferred[:0]

			for _, n := range order {
				if n.isDeferred {
					ac.deferred = append(ac.deferred, n)
				}
			}

			ac.dirty = false

			return nil
		}

		progress := false

		for _, n := range rest {
			if _, ok := n.kernel.(deferrable); ok && !n.isDeferred {
				n.isDeferred = true
				progress = true
			}
		}

		if !progress {
			ac.logger.Warn("audio graph rejected", "unresolved", len(rest))
			return ErrGraphCycle
		}
	}
}

func (ac *Context) sortOnce(ids []int) (order, rest []*nodeCore) {
	indegree := make(map[*nodeCore]int, len(ids))
	outgoing := make(map[*nodeCore][]*nodeCore, len(ids))

	for _, e := range ac.edges {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		if !e.to.isDeferred {
			indegree[e.to]++
		}
	}

	queue := make([]*nodeCore, 0, len(ids))

	for _, id := range ids {
		n := ac.nodes[id]
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order = make([]*nodeCore, 0, len(ids))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		order = append(order, n)

		for _, to := range outgoing[n] {
			if to.isDeferred {
				continue
			}

			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if len(order) == len(ids) {
		return order, nil
	}

	done := make(map[*nodeCore]bool, len(order))
	for _, n := range order {
		done[n] = true
	}

	for _, id := range ids {
		if n := ac.nodes[id]; !done[n] {
			rest = append(rest, n)
		}
	}

	return order, rest
}

// gather mixes every connection arriving at each input of n.
// Must be called with ac.mu held.
func (ac *Context) gather(n *nodeCore, frames int) []Bus {
	if n.inputs == 0 {
		return nil
	}

	if len(n.mix) != n.inputs {
		n.mix = make([]Bus, n.inputs)
	}

	for port := range n.inputs {
		channels := n.inChannels
		if channels == 0 {
			channels = 1

			for _, e := range ac.edges {
				if e.to == n && e.input == port && e.output < len(e.from.out) {
					channels = max(channels, e.from.out[e.output].Channels())
				}
			}
		}

		bus := sizeBus(n.mix[port], channels, frames)
		clearBus(bus)

		for _, e := range ac.edges {
			if e.to != n || e.input != port || e.output >= len(e.from.out) {
				continue
			}

			mixInto(bus, e.from.out[e.output], frames)
		}

		n.mix[port] = bus
	}

	return n.mix
}

// mixInto sums src into dst, up-mixing mono by copy and down-mixing stereo
// to mono by averaging. Other mismatches mix channel by channel.
func mixInto(dst, src Bus, frames int) {
	switch {
	case len(src) == 0:
		return
	case len(dst) == len(src):
		for c := range dst {
			vecmath.AddBlockInPlace(dst[c][:frames], src[c][:frames])
		}
	case len(src) == 1:
		for c := range dst {
			vecmath.AddBlockInPlace(dst[c][:frames], src[0][:frames])
		}
	case len(dst) == 1 && len(src) == 2:
		d := dst[0]
		for i := range frames {
			d[i] += 0.5 * (src[0][i] + src[1][i])
		}
	default:
		for c := range min(len(dst), len(src)) {
			vecmath.AddBlockInPlace(dst[c][:frames], src[c][:frames])
		}
	}
}

func sizeBus(b Bus, channels, frames int) Bus {
	if len(b) != channels {
		b = make(Bus, channels)
	}

	for c := range b {
		if cap(b[c]) < frames {
			b[c] = make([]float64, frames)
		}

		b[c] = b[c][:frames]
	}

	return b
}

func clearBus(b Bus) {
	for _, ch := range b {
		clear(ch)
	}
}

func copyBus(dst, src Bus) {
	for c := range dst {
		copy(dst[c], src[c])
	}
}
