// Package mode projects a button's latched pulse mode onto two indicator
// lines.
package mode

import (
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
)

// Selector reads the mode button and shows its latched mode: IDLE turns
// both indicators off, SHORT_PULSE lights the short indicator and
// LONG_PULSE lights the long one. The indicator lines are shared with other
// components and are not owned exclusively.
type Selector struct {
	classifier *pulse.Classifier
	shortOut   pin.Output
	longOut    pin.Output
}

// New creates a selector. Either output may be nil to run without an
// indicator.
func New(classifier *pulse.Classifier, shortOut, longOut pin.Output) *Selector {
	return &Selector{
		classifier: classifier,
		shortOut:   shortOut,
		longOut:    longOut,
	}
}

// ReadPulseMode samples the button and reports whether a new press latched.
func (s *Selector) ReadPulseMode() bool {
	return s.classifier.Sample()
}

// AssertOutputs drives the indicators from the current mode.
func (s *Selector) AssertOutputs() {
	switch s.classifier.Mode() {
	case pulse.Short:
		write(s.longOut, false)
		write(s.shortOut, true)
	case pulse.Long:
		write(s.shortOut, false)
		write(s.longOut, true)
	default:
		write(s.shortOut, false)
		write(s.longOut, false)
	}
}

// ForceMode overwrites the latched mode and re-asserts the indicators.
func (s *Selector) ForceMode(m pulse.Mode) {
	s.classifier.Force(m)
	s.AssertOutputs()
}

func (s *Selector) CurrentMode() pulse.Mode {
	return s.classifier.Mode()
}

func write(out pin.Output, level bool) {
	if out != nil {
		out.Write(level)
	}
}
