// Package channel implements selection and reporting of the recording
// channels with a single button.
//
// A short press reports the current channel by flashing the short indicator
// once per channel number. A long press starts a cycling loop that flashes
// candidate channels on the long indicator, counting up from the current one
// and wrapping after the last; a press during the window that follows a
// candidate commits it and reports it on the short indicator.
package channel

import (
	"log/slog"

	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
)

// State is the phase the selector is in.
type State string

const (
	StateIdle      State = "IDLE"
	StateReporting State = "REPORTING"
	StateSelecting State = "SELECTING"
)

// DefaultNames are the stream names of the four reference channels.
var DefaultNames = []string{"chnl1.txt", "chnl2.txt", "chnl3.txt", "chnl4.txt"}

// Timing holds the report and confirm-window timing in milliseconds.
type Timing struct {
	Pause        int64 // before a report on the short indicator
	PulseWidth   int64
	Spacing      int64
	Lead         int64
	ConfirmPolls int
	ConfirmPoll  int64
}

func DefaultTiming() Timing {
	return Timing{
		Pause:        400,
		PulseWidth:   200,
		Spacing:      80,
		Lead:         20,
		ConfirmPolls: 20,
		ConfirmPoll:  50,
	}
}

// Selector holds the currently selected channel, 1..N.
type Selector struct {
	classifier *pulse.Classifier
	clock      pin.Clock
	shortOut   pin.Output
	longOut    pin.Output
	names      []string
	timing     Timing
	logger     *slog.Logger

	current int
	state   State
	stop    func() bool
}

// New creates a selector over the given channel names; channel i is
// names[i-1]. The current channel starts at 1.
func New(classifier *pulse.Classifier, clock pin.Clock, shortOut, longOut pin.Output, names []string, timing Timing, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if len(names) == 0 {
		names = DefaultNames
	}
	return &Selector{
		classifier: classifier,
		clock:      clock,
		shortOut:   shortOut,
		longOut:    longOut,
		names:      append([]string(nil), names...),
		timing:     timing,
		logger:     logger,
		current:    1,
		state:      StateIdle,
	}
}

// SetStopCheck installs a function polled between candidate reports of the
// cycling loop. When it returns true the loop exits without committing. It
// exists for host shutdown only; the device itself never cancels a loop.
func (s *Selector) SetStopCheck(stop func() bool) {
	s.stop = stop
}

// ReadPulseMode samples the channel button and reports whether a new press
// latched.
func (s *Selector) ReadPulseMode() bool {
	return s.classifier.Sample()
}

// ProcessPulseMode acts on the latched mode. It blocks for the duration of a
// report or of the whole selection loop, and always leaves the mode IDLE.
func (s *Selector) ProcessPulseMode() {
	switch m := s.classifier.Mode(); m {
	case pulse.Idle:
		return

	case pulse.Short:
		s.state = StateReporting
		s.clock.Sleep(s.timing.Pause)
		s.ReportChannel(s.current, s.shortOut)
		s.classifier.Acknowledge()
		s.state = StateIdle

	case pulse.Long:
		// Acknowledge first so the confirming press is seen as new.
		s.classifier.Acknowledge()
		s.state = StateSelecting
		s.selectLoop()
		s.classifier.Acknowledge()
		s.state = StateIdle

	default:
		s.logger.Warn("Invalid pulse mode on channel button", "mode", int(m))
		s.classifier.Acknowledge()
	}
}

func (s *Selector) selectLoop() {
	candidate := s.current
	for {
		s.ReportChannel(candidate, s.longOut)

		for i := 0; i < s.timing.ConfirmPolls; i++ {
			s.clock.Sleep(s.timing.ConfirmPoll)
			if s.classifier.Sample() {
				s.current = candidate
				s.logger.Info("Channel selected", "channel", s.current, "name", s.CurrentChannelName())
				s.clock.Sleep(s.timing.Pause)
				s.ReportChannel(s.current, s.shortOut)
				return
			}
		}

		if s.stop != nil && s.stop() {
			s.logger.Debug("Channel selection abandoned", "candidate", candidate)
			return
		}
		candidate = Next(candidate, len(s.names))
	}
}

// ReportChannel flashes ch on out, once per channel number. Out-of-range
// channels are ignored.
func (s *Selector) ReportChannel(ch int, out pin.Output) {
	if ch < 1 || ch > len(s.names) || out == nil {
		return
	}
	out.Write(false)
	for i := 0; i < ch; i++ {
		pin.Emit(out, s.clock, s.timing.PulseWidth, s.timing.Spacing, s.timing.Lead)
	}
}

// ChannelName returns the stream name of ch, or "" when ch is out of range.
func (s *Selector) ChannelName(ch int) string {
	if ch < 1 || ch > len(s.names) {
		return ""
	}
	return s.names[ch-1]
}

func (s *Selector) CurrentChannelName() string {
	return s.ChannelName(s.current)
}

func (s *Selector) CurrentChannel() int {
	return s.current
}

// Count returns N, the number of channels.
func (s *Selector) Count() int {
	return len(s.names)
}

func (s *Selector) State() State {
	return s.state
}

// Next returns the channel after c, wrapping from n back to 1.
func Next(c, n int) int {
	return c%n + 1
}
