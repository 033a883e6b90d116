package pulse

import (
	"log/slog"

	"github.com/audiolibrelab/keycapture/internal/pin"
)

// Thresholds configures press classification, all in milliseconds.
type Thresholds struct {
	Debounce int64
	Short    int64 // presses shorter than this are Short
	Long     int64 // presses at least this long are Long
}

// DefaultThresholds returns the reference timing: 10 ms debounce, Short
// below 600 ms, Long from 1200 ms.
func DefaultThresholds() Thresholds {
	return Thresholds{Debounce: 10, Short: 600, Long: 1200}
}

// Classifier samples one button line and latches the classification of each
// completed press until it is acknowledged.
type Classifier struct {
	clock  pin.Clock
	deb    *Debouncer
	th     Thresholds
	logger *slog.Logger

	mode    Mode
	pressed bool
	pressAt int64
}

func NewClassifier(line pin.Input, clock pin.Clock, th Thresholds, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		clock:  clock,
		deb:    NewDebouncer(line, th.Debounce),
		th:     th,
		logger: logger,
	}
}

// Sample reads the line and returns true when a newly completed press was
// latched by this call. Presses between the two thresholds are dropped.
func (c *Classifier) Sample() bool {
	e, ok := c.deb.Update(c.clock.NowMillis())
	if !ok {
		return false
	}

	if e.Level {
		c.pressed = true
		c.pressAt = e.At
		return false
	}

	if !c.pressed {
		return false
	}
	c.pressed = false

	duration := e.At - c.pressAt
	m := c.Classify(duration)
	if m == Idle {
		c.logger.Debug("Press discarded", "duration_ms", duration)
		return false
	}
	if c.mode.Pending() {
		c.logger.Debug("Pending press replaced", "previous", c.mode, "next", m)
	}
	c.mode = m
	return true
}

// Classify maps a press duration to Short, Long, or Idle for noise.
func (c *Classifier) Classify(duration int64) Mode {
	switch {
	case duration < c.th.Short:
		return Short
	case duration >= c.th.Long:
		return Long
	default:
		return Idle
	}
}

// Mode returns the latched classification.
func (c *Classifier) Mode() Mode {
	return c.mode
}

// Force overwrites the latched mode.
func (c *Classifier) Force(m Mode) {
	c.mode = m
}

// Acknowledge marks the pending press as handled.
func (c *Classifier) Acknowledge() {
	c.mode = Idle
}
