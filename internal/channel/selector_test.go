package channel

import (
	"testing"

	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
)

type fixture struct {
	sel      *Selector
	in       *pin.SimInput
	clk      *pin.FakeClock
	shortOut *pin.SimOutput
	longOut  *pin.SimOutput
}

func newFixture() *fixture {
	clk := pin.NewFakeClock(0)
	in := pin.NewSimInput(clk)
	shortOut := pin.NewSimOutput(clk)
	longOut := pin.NewSimOutput(clk)
	c := pulse.NewClassifier(in, clk, pulse.DefaultThresholds(), nil)
	return &fixture{
		sel:      New(c, clk, shortOut, longOut, nil, DefaultTiming(), nil),
		in:       in,
		clk:      clk,
		shortOut: shortOut,
		longOut:  longOut,
	}
}

// pollUntilLatched advances the clock in 10 ms steps until a press latches.
func (f *fixture) pollUntilLatched(t *testing.T, limit int64) {
	t.Helper()
	for f.clk.NowMillis() <= limit {
		if f.sel.ReadPulseMode() {
			return
		}
		f.clk.Advance(10)
	}
	t.Fatalf("no press latched before %d", limit)
}

// pulseGroups splits the rising edges of history into groups separated by
// at least 500 ms of silence and returns the size of each group.
func pulseGroups(history []pin.Edge) []int {
	var groups []int
	var lastAt int64 = -1
	for _, e := range history {
		if !e.Level {
			continue
		}
		if lastAt < 0 || e.At-lastAt >= 500 {
			groups = append(groups, 0)
		}
		groups[len(groups)-1]++
		lastAt = e.At
	}
	return groups
}

func TestChannelName(t *testing.T) {
	f := newFixture()

	for ch, want := range map[int]string{1: "chnl1.txt", 2: "chnl2.txt", 3: "chnl3.txt", 4: "chnl4.txt"} {
		if got := f.sel.ChannelName(ch); got != want {
			t.Errorf("ChannelName(%d) = %q, want %q", ch, got, want)
		}
	}
	for _, ch := range []int{-100, -1, 0, 5, 6, 1 << 20} {
		if got := f.sel.ChannelName(ch); got != "" {
			t.Errorf("ChannelName(%d) = %q, want empty", ch, got)
		}
	}
	if f.sel.CurrentChannel() != 1 || f.sel.CurrentChannelName() != "chnl1.txt" {
		t.Errorf("Expected channel 1 at start, got %d", f.sel.CurrentChannel())
	}
}

func TestNext_IsCyclic(t *testing.T) {
	for n := 1; n <= 9; n++ {
		for start := 1; start <= n; start++ {
			c := start
			for i := 0; i < n; i++ {
				c = Next(c, n)
				if c < 1 || c > n {
					t.Fatalf("Next left range: n=%d c=%d", n, c)
				}
			}
			if c != start {
				t.Errorf("n=%d: after %d advances from %d got %d", n, n, start, c)
			}
		}
	}
}

func TestReportChannel_OutOfRangeIsNoop(t *testing.T) {
	f := newFixture()
	for _, ch := range []int{0, -1, 5} {
		f.sel.ReportChannel(ch, f.shortOut)
	}
	if len(f.shortOut.History()) != 0 {
		t.Errorf("Expected no writes, got %v", f.shortOut.History())
	}
	if f.clk.NowMillis() != 0 {
		t.Errorf("Expected no time to pass, got %d", f.clk.NowMillis())
	}
}

func TestShortPress_ReportsCurrentChannel(t *testing.T) {
	f := newFixture()
	f.sel.current = 3
	f.in.Press(100, 200)

	f.pollUntilLatched(t, 1000)
	latchedAt := f.clk.NowMillis()
	f.sel.ProcessPulseMode()

	if got := f.shortOut.Pulses(); got != 3 {
		t.Errorf("Expected 3 pulses on the short line, got %d", got)
	}
	if f.longOut.Pulses() != 0 {
		t.Errorf("Expected no pulses on the long line, got %d", f.longOut.Pulses())
	}

	h := f.shortOut.History()
	var firstRise int64 = -1
	for _, e := range h {
		if e.Level {
			firstRise = e.At
			break
		}
	}
	if want := latchedAt + 400 + 20; firstRise != want {
		t.Errorf("Expected first pulse at %d, got %d", want, firstRise)
	}
	if want := latchedAt + 400 + 3*300; f.clk.NowMillis() != want {
		t.Errorf("Expected report to end at %d, got %d", want, f.clk.NowMillis())
	}
	if f.sel.classifier.Mode() != pulse.Idle {
		t.Errorf("Expected IDLE after report, got %s", f.sel.classifier.Mode())
	}
	if f.sel.State() != StateIdle {
		t.Errorf("Expected selector IDLE, got %s", f.sel.State())
	}
	if f.sel.CurrentChannel() != 3 {
		t.Errorf("Expected channel unchanged, got %d", f.sel.CurrentChannel())
	}
}

func TestLongPress_CyclesAndCommits(t *testing.T) {
	f := newFixture()
	f.sel.current = 3
	f.in.Press(100, 1500)
	f.pollUntilLatched(t, 2000)

	// Candidates 3 and 4 time out; the press lands in channel 1's window.
	// Process starts at 1610: report 3 ends 2510, window ends 3510,
	// report 4 ends 4710, window ends 5710, report 1 ends 6010.
	f.in.Press(6100, 100)

	f.sel.ProcessPulseMode()

	if f.sel.CurrentChannel() != 1 {
		t.Errorf("Expected channel 1 committed, got %d", f.sel.CurrentChannel())
	}
	groups := pulseGroups(f.longOut.History())
	want := []int{3, 4, 1}
	if len(groups) != len(want) {
		t.Fatalf("Expected candidate reports %v, got %v", want, groups)
	}
	for i := range want {
		if groups[i] != want[i] {
			t.Errorf("Expected candidate reports %v, got %v", want, groups)
			break
		}
	}
	if f.shortOut.Pulses() != 1 {
		t.Errorf("Expected committed channel reported once on short line, got %d pulses", f.shortOut.Pulses())
	}
	if f.sel.classifier.Mode() != pulse.Idle {
		t.Errorf("Expected IDLE after selection, got %s", f.sel.classifier.Mode())
	}
}

func TestLongPress_CandidateSequenceWraps(t *testing.T) {
	f := newFixture()
	f.sel.current = 3
	calls := 0
	f.sel.SetStopCheck(func() bool {
		calls++
		return calls == 5
	})
	f.sel.classifier.Force(pulse.Long)

	f.sel.ProcessPulseMode()

	groups := pulseGroups(f.longOut.History())
	want := []int{3, 4, 1, 2, 3}
	if len(groups) != len(want) {
		t.Fatalf("Expected candidates %v, got %v", want, groups)
	}
	for i := range want {
		if groups[i] != want[i] {
			t.Fatalf("Expected candidates %v, got %v", want, groups)
		}
	}
	if f.sel.CurrentChannel() != 3 {
		t.Errorf("Expected channel unchanged without confirmation, got %d", f.sel.CurrentChannel())
	}
	if f.shortOut.Pulses() != 0 {
		t.Error("Expected no commit report")
	}
}

func TestProcess_InvalidModeForcesIdle(t *testing.T) {
	f := newFixture()
	f.sel.classifier.Force(pulse.Mode(9))

	f.sel.ProcessPulseMode()

	if f.sel.classifier.Mode() != pulse.Idle {
		t.Errorf("Expected IDLE, got %s", f.sel.classifier.Mode())
	}
	if len(f.shortOut.History())+len(f.longOut.History()) != 0 {
		t.Error("Expected no indicator activity")
	}
}

func TestProcess_IdleDoesNothing(t *testing.T) {
	f := newFixture()
	f.sel.ProcessPulseMode()
	if f.clk.NowMillis() != 0 {
		t.Errorf("Expected no blocking when idle, clock at %d", f.clk.NowMillis())
	}
}

func TestNew_CustomNames(t *testing.T) {
	clk := pin.NewFakeClock(0)
	c := pulse.NewClassifier(pin.NewSimInput(clk), clk, pulse.DefaultThresholds(), nil)
	s := New(c, clk, nil, nil, []string{"a.txt", "b.txt"}, DefaultTiming(), nil)

	if s.Count() != 2 || s.ChannelName(2) != "b.txt" || s.ChannelName(3) != "" {
		t.Errorf("unexpected channel table: count=%d", s.Count())
	}
}
