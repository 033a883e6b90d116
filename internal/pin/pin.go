package pin

// Edge is a raw transition observed on an input line.
type Edge struct {
	Level bool  `json:"level"`
	At    int64 `json:"at"` // monotonic milliseconds
}

// Input defines a digital input line. Levels are logical: a pressed button
// or a closed key reads true.
type Input interface {
	// ReadTransition returns the most recent raw edge seen on the line.
	ReadTransition() Edge
	Level() bool
}

// Output defines a digital output line.
type Output interface {
	Write(level bool)
	Level() bool
}

// Clock is the single monotonic millisecond clock shared by the device.
type Clock interface {
	NowMillis() int64
	Sleep(ms int64)
}

// Emit drives one report pulse on out: wait lead, high for width, low,
// then wait spacing. It blocks for lead+width+spacing milliseconds.
func Emit(out Output, clk Clock, width, spacing, lead int64) {
	clk.Sleep(lead)
	out.Write(true)
	clk.Sleep(width)
	out.Write(false)
	clk.Sleep(spacing)
}

// observed forwards writes to an Output and reports level changes.
type observed struct {
	Output
	notify func(level bool)
}

// Observe wraps out so that notify is called after every write that changes
// the line level.
func Observe(out Output, notify func(level bool)) Output {
	return &observed{Output: out, notify: notify}
}

func (o *observed) Write(level bool) {
	prev := o.Output.Level()
	o.Output.Write(level)
	if prev != level && o.notify != nil {
		o.notify(level)
	}
}
