package mode

import (
	"testing"

	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
)

func newTestSelector() (*Selector, *pin.SimInput, *pin.SimOutput, *pin.SimOutput, *pin.FakeClock) {
	clk := pin.NewFakeClock(0)
	in := pin.NewSimInput(clk)
	shortOut := pin.NewSimOutput(clk)
	longOut := pin.NewSimOutput(clk)
	c := pulse.NewClassifier(in, clk, pulse.DefaultThresholds(), nil)
	return New(c, shortOut, longOut), in, shortOut, longOut, clk
}

func TestAssertOutputs(t *testing.T) {
	tests := []struct {
		mode      pulse.Mode
		wantShort bool
		wantLong  bool
	}{
		{pulse.Idle, false, false},
		{pulse.Short, true, false},
		{pulse.Long, false, true},
		{pulse.Mode(7), false, false},
	}

	for _, tt := range tests {
		s, _, shortOut, longOut, _ := newTestSelector()
		shortOut.Write(true)
		longOut.Write(true)

		s.ForceMode(tt.mode)

		if shortOut.Level() != tt.wantShort || longOut.Level() != tt.wantLong {
			t.Errorf("mode %s: got short=%v long=%v, want short=%v long=%v",
				tt.mode, shortOut.Level(), longOut.Level(), tt.wantShort, tt.wantLong)
		}
		if s.CurrentMode() != tt.mode {
			t.Errorf("Expected current mode %s, got %s", tt.mode, s.CurrentMode())
		}
	}
}

func TestReadPulseMode_LongPress(t *testing.T) {
	s, in, shortOut, longOut, clk := newTestSelector()
	in.Press(100, 1500)

	changed := false
	for at := int64(100); at <= 1700; at += 10 {
		clk.Set(at)
		if s.ReadPulseMode() {
			changed = true
			s.AssertOutputs()
		}
	}

	if !changed {
		t.Fatal("Expected the long press to be reported")
	}
	if s.CurrentMode() != pulse.Long {
		t.Errorf("Expected LONG_PULSE, got %s", s.CurrentMode())
	}
	if shortOut.Level() || !longOut.Level() {
		t.Errorf("Expected only the long indicator lit, got short=%v long=%v", shortOut.Level(), longOut.Level())
	}

	s.ForceMode(pulse.Idle)
	if shortOut.Level() || longOut.Level() {
		t.Error("Expected both indicators off after acknowledge")
	}
}

func TestSelector_WithoutOutputs(t *testing.T) {
	clk := pin.NewFakeClock(0)
	c := pulse.NewClassifier(pin.NewSimInput(clk), clk, pulse.DefaultThresholds(), nil)
	s := New(c, nil, nil)

	s.ForceMode(pulse.Short)
	if s.CurrentMode() != pulse.Short {
		t.Errorf("Expected SHORT_PULSE, got %s", s.CurrentMode())
	}
}
