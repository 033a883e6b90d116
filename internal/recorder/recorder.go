// Package recorder records key-down intervals to a named stream and plays
// them back with timing reconstructed from absolute anchors.
//
// Playback never accumulates time. Each query computes the loaded pulse's
// window from the playback start time and the first recorded start time, so
// a late poll cannot shift the pulses that follow it.
package recorder

import (
	"errors"
	"io"
	"log/slog"

	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
	"github.com/audiolibrelab/keycapture/internal/storage"
)

// DefaultPlaybackDelay is the settle time between opening a recording and
// its first pulse, in milliseconds.
const DefaultPlaybackDelay = 100

// Recorder owns the single open recording session. Opening a session always
// closes the previous one first.
type Recorder struct {
	store  storage.Store
	clock  pin.Clock
	delay  int64
	logger *slog.Logger

	ready  bool
	stream storage.Stream

	fileName       string
	openForRead    bool
	openForWrite   bool
	playbackActive bool

	playbackStart int64
	trainStart    int64
	current       pulse.Event
	records       int
}

func NewRecorder(store storage.Store, clock pin.Clock, playbackDelay int64, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		clock:  clock,
		delay:  playbackDelay,
		logger: logger,
	}
}

// Initialize brings the store up and reports whether it is usable. Without
// a usable store every open fails and the rest of the device keeps working.
func (r *Recorder) Initialize() bool {
	if r.store == nil {
		r.logger.Warn("No storage configured")
		return false
	}
	if err := r.store.Init(); err != nil {
		r.logger.Warn("Storage initialization failed", "error", err)
		r.ready = false
		return false
	}
	r.ready = true
	r.logger.Debug("Storage ready")
	return true
}

// Ready reports whether Initialize succeeded.
func (r *Recorder) Ready() bool {
	return r.ready
}

// OpenForRecording truncates or creates the named stream for writing.
func (r *Recorder) OpenForRecording(name string) bool {
	r.Close()
	if !r.ready {
		r.logger.Warn("Cannot record, storage unavailable", "channel", name)
		return false
	}

	s, err := r.store.Open(name, storage.ModeWrite)
	if err != nil {
		r.logger.Warn("Failed to open for recording", "channel", name, "error", err)
		return false
	}

	r.stream = s
	r.fileName = name
	r.openForWrite = true
	r.records = 0
	r.logger.Info("Recording started", "channel", name)
	return true
}

// RecordPulse appends e to the open recording and flushes it. It returns
// false only when no recording is open; invalid events are skipped.
func (r *Recorder) RecordPulse(e pulse.Event) bool {
	if !r.openForWrite {
		return false
	}
	if !e.Valid() {
		r.logger.Debug("Skipping invalid pulse", "start", e.Start, "end", e.End)
		return true
	}

	if err := r.stream.WriteLine(e.String()); err != nil {
		r.logger.Warn("Failed to write pulse", "channel", r.fileName, "error", err)
		return true
	}
	if err := r.stream.Flush(); err != nil {
		r.logger.Warn("Failed to flush pulse", "channel", r.fileName, "error", err)
		return true
	}
	r.records++
	return true
}

// OpenForPlayback opens the named stream and loads its first pulse. Playback
// starts DefaultPlaybackDelay (or the configured delay) from now, anchored
// on the first pulse's start time.
func (r *Recorder) OpenForPlayback(name string) bool {
	r.Close()
	if !r.ready {
		r.logger.Warn("Cannot play back, storage unavailable", "channel", name)
		return false
	}

	s, err := r.store.Open(name, storage.ModeRead)
	if err != nil {
		r.logger.Warn("Failed to open for playback", "channel", name, "error", err)
		return false
	}

	r.stream = s
	r.fileName = name
	r.openForRead = true
	r.records = 0

	if !r.ReadNextPulse() {
		r.logger.Warn("Nothing to play back", "channel", name)
		r.Close()
		return false
	}

	r.playbackStart = r.clock.NowMillis() + r.delay
	r.trainStart = r.current.Start
	r.playbackActive = true
	r.logger.Info("Playback started", "channel", name, "at", r.playbackStart)
	return true
}

// ReadNextPulse loads the next pulse of the open playback stream. The end of
// the stream, a cut final line or an invalid record ends playback.
func (r *Recorder) ReadNextPulse() bool {
	if !r.openForRead {
		return false
	}

	line, err := r.stream.ReadLine()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			r.logger.Debug("Recording exhausted", "channel", r.fileName, "records", r.records)
		case errors.Is(err, storage.ErrPartialLine):
			r.logger.Debug("Partial final record", "channel", r.fileName, "line", line)
		default:
			r.logger.Warn("Failed to read pulse", "channel", r.fileName, "error", err)
		}
		r.playbackActive = false
		return false
	}

	e, err := pulse.ParseEvent(line)
	if err != nil {
		r.logger.Debug("Invalid record ends playback", "channel", r.fileName, "error", err)
		r.playbackActive = false
		return false
	}

	r.current = e
	r.records++
	return true
}

// PlaybackLogicalState returns the key level for the current time. Once the
// loaded pulse has fully elapsed it returns low and loads the next pulse.
func (r *Recorder) PlaybackLogicalState() bool {
	if !r.playbackActive {
		return false
	}
	now := r.clock.NowMillis()
	if r.advanceIfElapsed(now) {
		return false
	}
	start, _ := r.window()
	return now >= start
}

// advanceIfElapsed loads the next pulse when the current one ended at or
// before now.
func (r *Recorder) advanceIfElapsed(now int64) bool {
	_, end := r.window()
	if now < end {
		return false
	}
	r.ReadNextPulse()
	return true
}

// window returns the absolute key-down window of the loaded pulse.
func (r *Recorder) window() (start, end int64) {
	start = r.playbackStart + (r.current.Start - r.trainStart)
	end = r.playbackStart + (r.current.End - r.trainStart)
	return start, end
}

// PlayBackKeying drives key and sidetone to the playback level and reports
// whether the level changed. Sidetone may be nil.
func (r *Recorder) PlayBackKeying(key, sidetone pin.Output) bool {
	if key == nil {
		return false
	}
	level := r.PlaybackLogicalState()
	if key.Level() == level {
		return false
	}
	key.Write(level)
	if sidetone != nil {
		sidetone.Write(level)
	}
	return true
}

// Close releases the open stream, if any, and clears the session.
func (r *Recorder) Close() {
	if !r.openForRead && !r.openForWrite {
		return
	}
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.logger.Warn("Failed to close stream", "channel", r.fileName, "error", err)
		}
	}
	r.logger.Debug("Session closed", "channel", r.fileName, "records", r.records)

	r.stream = nil
	r.fileName = ""
	r.openForRead = false
	r.openForWrite = false
	r.playbackActive = false
	r.playbackStart = 0
	r.trainStart = 0
	r.current = pulse.Event{}
}

func (r *Recorder) PlaybackActive() bool { return r.playbackActive }
func (r *Recorder) IsOpenForRead() bool  { return r.openForRead }
func (r *Recorder) IsOpenForWrite() bool { return r.openForWrite }
func (r *Recorder) FileName() string     { return r.fileName }

// Records returns the number of pulses written or loaded in the current
// session. It keeps its value after Close until the next session opens.
func (r *Recorder) Records() int { return r.records }

// Current returns the loaded playback pulse.
func (r *Recorder) Current() pulse.Event { return r.current }
