package device

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/audiolibrelab/keycapture/internal/pin"
)

// Input line names on a SimBoard.
const (
	LineKey     = "key"
	LineMode    = "mode"
	LineChannel = "channel"
)

// Output line names on a SimBoard.
const (
	LineKeyOut   = "key_out"
	LineSidetone = "sidetone"
	LineShort    = "short"
	LineLong     = "long"
)

// SimBoard is a software front panel: three button inputs and four output
// lines, shared by the terminal simulator and the remote panel.
type SimBoard struct {
	clock   pin.Clock
	inputs  map[string]*pin.SimInput
	outputs map[string]pin.Output

	mu       sync.Mutex
	watchers []func(name string, level bool, at int64)
}

func NewSimBoard(clock pin.Clock) *SimBoard {
	b := &SimBoard{
		clock: clock,
		inputs: map[string]*pin.SimInput{
			LineKey:     pin.NewSimInput(clock),
			LineMode:    pin.NewSimInput(clock),
			LineChannel: pin.NewSimInput(clock),
		},
		outputs: make(map[string]pin.Output),
	}
	for _, name := range []string{LineKeyOut, LineSidetone, LineShort, LineLong} {
		b.outputs[name] = pin.Observe(pin.NewSimOutput(clock), func(level bool) {
			b.notify(name, level)
		})
	}
	return b
}

// Lines returns the board wired as device lines.
func (b *SimBoard) Lines() Lines {
	return Lines{
		KeyIn:     b.inputs[LineKey],
		ModeIn:    b.inputs[LineMode],
		ChannelIn: b.inputs[LineChannel],
		KeyOut:    b.outputs[LineKeyOut],
		Sidetone:  b.outputs[LineSidetone],
		ShortLED:  b.outputs[LineShort],
		LongLED:   b.outputs[LineLong],
	}
}

// Watch registers fn to be called on every output level change. It runs on
// the goroutine that drove the line and must not block.
func (b *SimBoard) Watch(fn func(name string, level bool, at int64)) {
	b.mu.Lock()
	b.watchers = append(b.watchers, fn)
	b.mu.Unlock()
}

func (b *SimBoard) notify(name string, level bool) {
	at := b.clock.NowMillis()
	b.mu.Lock()
	watchers := slices.Clone(b.watchers)
	b.mu.Unlock()
	for _, fn := range watchers {
		fn(name, level, at)
	}
}

// Set drives a button input.
func (b *SimBoard) Set(name string, pressed bool) error {
	in, ok := b.inputs[name]
	if !ok {
		return fmt.Errorf("unknown input line %q", name)
	}
	in.Set(pressed)
	return nil
}

// Toggle inverts a button input and returns its new level.
func (b *SimBoard) Toggle(name string) (bool, error) {
	in, ok := b.inputs[name]
	if !ok {
		return false, fmt.Errorf("unknown input line %q", name)
	}
	return in.Toggle(), nil
}

// Levels returns the current level of every line, inputs included.
func (b *SimBoard) Levels() map[string]bool {
	levels := make(map[string]bool, len(b.inputs)+len(b.outputs))
	for name, in := range b.inputs {
		levels[name] = in.Level()
	}
	for name, out := range b.outputs {
		levels[name] = out.Level()
	}
	return levels
}

// Level returns the level of one line; unknown names read low.
func (b *SimBoard) Level(name string) bool {
	if in, ok := b.inputs[name]; ok {
		return in.Level()
	}
	if out, ok := b.outputs[name]; ok {
		return out.Level()
	}
	return false
}

// LineNames returns every line name in sorted order.
func (b *SimBoard) LineNames() []string {
	names := make([]string, 0, len(b.inputs)+len(b.outputs))
	for name := range b.inputs {
		names = append(names, name)
	}
	for name := range b.outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
