// Package device wires the keying recorder together and runs its poll loop.
//
// Three buttons drive the device. The channel button selects the recording
// channel. On the mode button a short press plays the current channel back
// and a long press records onto it; any press while a session runs stops
// it. The key input is passed through to the keying output and sidetone
// except during playback, and each completed key-down is recorded while a
// recording session is open.
package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/keycapture/internal/channel"
	"github.com/audiolibrelab/keycapture/internal/mode"
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
	"github.com/audiolibrelab/keycapture/internal/recorder"
)

// State represents the session state of the device.
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StatePlaying   State = "PLAYING"
)

// Lines are the device's inputs and outputs. The indicator outputs are
// shared by the mode and channel selectors.
type Lines struct {
	KeyIn     pin.Input
	ModeIn    pin.Input
	ChannelIn pin.Input

	KeyOut   pin.Output
	Sidetone pin.Output
	ShortLED pin.Output
	LongLED  pin.Output
}

// Options configures the device timing and channel table.
type Options struct {
	Channels    []string
	Thresholds  pulse.Thresholds
	Report      channel.Timing
	LoopDelay   int64
	StartupWait int64
}

// Status is a snapshot of the device for observers.
type Status struct {
	State       State  `json:"state"`
	Channel     int    `json:"channel"`
	ChannelName string `json:"channel_name"`
	Mode        string `json:"mode"`
	Records     int    `json:"records"`
	StoreReady  bool   `json:"store_ready"`
}

// Device runs every component from a single goroutine. Only Status and
// OnStatus are safe to use from other goroutines.
type Device struct {
	lines    Lines
	clock    pin.Clock
	opts     Options
	recorder *recorder.Recorder
	logger   *slog.Logger

	modeButton    *pulse.Classifier
	channelButton *pulse.Classifier
	modes         *mode.Selector
	channels      *channel.Selector
	key           *pulse.Debouncer

	state     State
	keyDown   bool
	keyDownAt int64

	mu       sync.Mutex
	status   Status
	onStatus func(Status)
}

func New(lines Lines, clock pin.Clock, rec *recorder.Recorder, opts Options, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	modeButton := pulse.NewClassifier(lines.ModeIn, clock, opts.Thresholds, logger.With("button", "mode"))
	channelButton := pulse.NewClassifier(lines.ChannelIn, clock, opts.Thresholds, logger.With("button", "channel"))

	d := &Device{
		lines:         lines,
		clock:         clock,
		opts:          opts,
		recorder:      rec,
		logger:        logger,
		modeButton:    modeButton,
		channelButton: channelButton,
		modes:         mode.New(modeButton, lines.ShortLED, lines.LongLED),
		channels:      channel.New(channelButton, clock, lines.ShortLED, lines.LongLED, opts.Channels, opts.Report, logger),
		key:           pulse.NewDebouncer(lines.KeyIn, opts.Thresholds.Debounce),
		state:         StateIdle,
	}
	d.publish()
	return d
}

// OnStatus registers a function called from the device goroutine whenever
// the status snapshot changes.
func (d *Device) OnStatus(fn func(Status)) {
	d.mu.Lock()
	d.onStatus = fn
	d.mu.Unlock()
}

// Initialize brings up storage. The device keeps running without it; only
// recording and playback are unavailable.
func (d *Device) Initialize() bool {
	ok := d.recorder.Initialize()
	if !ok {
		d.logger.Warn("Recording and playback disabled")
	}
	d.publish()
	return ok
}

// Run initializes the device and polls it until ctx is done.
func (d *Device) Run(ctx context.Context) error {
	d.channels.SetStopCheck(func() bool { return ctx.Err() != nil })

	d.clock.Sleep(d.opts.StartupWait)
	d.Initialize()
	d.modes.AssertOutputs()
	d.logger.Info("Device running", "channels", d.channels.Count(), "channel", d.channels.CurrentChannelName())

	for {
		select {
		case <-ctx.Done():
			d.stopSession("shutdown")
			d.logger.Info("Device stopped")
			return nil
		default:
		}
		d.Step()
		d.clock.Sleep(d.opts.LoopDelay)
	}
}

// Step runs one poll cycle. Channel reports and selection block inside it.
func (d *Device) Step() {
	d.pollChannelButton()
	d.pollModeButton()

	if d.state == StatePlaying {
		d.playback()
	} else {
		d.passThrough()
	}
	d.publish()
}

func (d *Device) pollChannelButton() {
	if !d.channels.ReadPulseMode() {
		return
	}
	if d.state != StateIdle {
		d.logger.Debug("Channel button ignored during session", "state", d.state)
		d.channelButton.Acknowledge()
		return
	}
	before := d.channels.CurrentChannel()
	d.channels.ProcessPulseMode()
	if after := d.channels.CurrentChannel(); after != before {
		d.publish()
	}
}

func (d *Device) pollModeButton() {
	if !d.modes.ReadPulseMode() {
		return
	}

	if d.state != StateIdle {
		d.stopSession("mode button")
		return
	}

	name := d.channels.CurrentChannelName()
	switch d.modes.CurrentMode() {
	case pulse.Short:
		if d.recorder.OpenForPlayback(name) {
			d.state = StatePlaying
			d.modes.AssertOutputs()
			return
		}
	case pulse.Long:
		if d.recorder.OpenForRecording(name) {
			d.state = StateRecording
			d.keyDown = false
			d.modes.AssertOutputs()
			return
		}
	}
	d.modes.ForceMode(pulse.Idle)
}

func (d *Device) stopSession(reason string) {
	if d.state == StateIdle {
		return
	}
	d.logger.Info("Session stopped", "state", d.state, "reason", reason, "records", d.recorder.Records())
	d.recorder.Close()
	d.state = StateIdle
	d.keyDown = false
	writeBoth(d.lines.KeyOut, d.lines.Sidetone, false)
	d.modes.ForceMode(pulse.Idle)
}

func (d *Device) playback() {
	d.recorder.PlayBackKeying(d.lines.KeyOut, d.lines.Sidetone)
	if !d.recorder.PlaybackActive() {
		d.stopSession("playback finished")
	}
}

func (d *Device) passThrough() {
	e, ok := d.key.Update(d.clock.NowMillis())
	if !ok {
		return
	}
	writeBoth(d.lines.KeyOut, d.lines.Sidetone, e.Level)

	if d.state != StateRecording {
		return
	}
	if e.Level {
		d.keyDown = true
		d.keyDownAt = e.At
		return
	}
	if d.keyDown {
		d.keyDown = false
		d.recorder.RecordPulse(pulse.Event{Start: d.keyDownAt, End: e.At})
	}
}

func (d *Device) publish() {
	s := Status{
		State:       d.state,
		Channel:     d.channels.CurrentChannel(),
		ChannelName: d.channels.CurrentChannelName(),
		Mode:        d.modes.CurrentMode().String(),
		Records:     d.recorder.Records(),
		StoreReady:  d.recorder.Ready(),
	}

	d.mu.Lock()
	changed := s != d.status
	d.status = s
	fn := d.onStatus
	d.mu.Unlock()

	if changed && fn != nil {
		fn(s)
	}
}

// Status returns the latest snapshot.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Channels returns the channel table, index 0 being channel 1.
func (d *Device) Channels() []string {
	names := make([]string, d.channels.Count())
	for i := range names {
		names[i] = d.channels.ChannelName(i + 1)
	}
	return names
}

func writeBoth(a, b pin.Output, level bool) {
	if a != nil && a.Level() != level {
		a.Write(level)
	}
	if b != nil && b.Level() != level {
		b.Write(level)
	}
}
