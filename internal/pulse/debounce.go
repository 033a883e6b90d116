package pulse

import "github.com/audiolibrelab/keycapture/internal/pin"

// Debouncer turns raw edges into settled transitions. An edge is accepted
// once the line has held its new level for the debounce interval; an edge
// that bounces back to the settled level before then is never reported.
// Only the latest raw edge is inspected, so a press completed between two
// Update calls is lost.
type Debouncer struct {
	line     pin.Input
	interval int64
	stable   bool
}

func NewDebouncer(line pin.Input, interval int64) *Debouncer {
	return &Debouncer{line: line, interval: interval}
}

// Update checks the line at time now. It returns the accepted edge, stamped
// with the raw edge time, and true when the settled level changed.
func (d *Debouncer) Update(now int64) (pin.Edge, bool) {
	e := d.line.ReadTransition()
	if e.Level == d.stable {
		return pin.Edge{}, false
	}
	if now-e.At < d.interval {
		return pin.Edge{}, false
	}
	d.stable = e.Level
	return e, true
}

// Level returns the settled level.
func (d *Debouncer) Level() bool {
	return d.stable
}
