package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/keycapture/internal/config"
	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/pulse"
	"github.com/audiolibrelab/keycapture/internal/recorder"
	"github.com/audiolibrelab/keycapture/internal/storage"
)

// Service represents the host-side operations on a keycapture store
type Service interface {
	// Channel operations
	Channels() ([]ChannelInfo, error)
	Dump(ch int) ([]pulse.Event, error)

	// Playback operations
	Play(ctx context.Context, ch int, sink func(at int64, level bool)) error

	// Device operations
	NewDevice(lines device.Lines, clock pin.Clock) *device.Device

	GetConfig() *config.Config

	GetLastError() string
	Close() error
}

// ChannelInfo describes one channel and its recording
type ChannelInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Recorded   bool   `json:"recorded"`
	Records    int    `json:"records"`
	DurationMs int64  `json:"duration_ms"` // first key-down to last key-up
	KeyDownMs  int64  `json:"key_down_ms"`
}

// KeyCaptureService is the main service implementation
type KeyCaptureService struct {
	cfg    *config.Config
	store  storage.Store
	clock  pin.Clock
	logger *slog.Logger

	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service over the configured store. A store that fails to
// come up is reported through GetLastError; operations needing it fail.
func New(cfg *config.Config, logger *slog.Logger) (*KeyCaptureService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s := &KeyCaptureService{
		cfg:    cfg,
		store:  store,
		clock:  pin.NewSystemClock(),
		logger: logger,
	}
	if err := store.Init(); err != nil {
		logger.Warn("Storage unavailable", "backend", cfg.Storage.Backend, "error", err)
		s.setLastError(fmt.Sprintf("Storage unavailable: %v", err))
	}
	return s, nil
}

// Channels lists the configured channels with a summary of each recording.
func (s *KeyCaptureService) Channels() ([]ChannelInfo, error) {
	infos := make([]ChannelInfo, 0, len(s.cfg.Channels))
	for i, name := range s.cfg.Channels {
		info := ChannelInfo{Index: i + 1, Name: name}

		exists, err := s.store.Exists(name)
		if err != nil {
			return nil, fmt.Errorf("failed to check channel %s: %w", name, err)
		}
		if exists {
			events, err := s.readEvents(name)
			if err != nil {
				return nil, err
			}
			info.Recorded = true
			info.Records = len(events)
			if len(events) > 0 {
				info.DurationMs = events[len(events)-1].End - events[0].Start
			}
			for _, e := range events {
				info.KeyDownMs += e.Duration()
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Dump returns the playable events of channel ch, stopping at the first
// record playback would stop at.
func (s *KeyCaptureService) Dump(ch int) ([]pulse.Event, error) {
	name := s.cfg.ChannelName(ch)
	if name == "" {
		return nil, fmt.Errorf("channel %d out of range 1..%d", ch, len(s.cfg.Channels))
	}
	return s.readEvents(name)
}

func (s *KeyCaptureService) readEvents(name string) ([]pulse.Event, error) {
	stream, err := s.store.Open(name, storage.ModeRead)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel %s: %w", name, err)
	}
	defer stream.Close()

	var events []pulse.Event
	for {
		line, err := stream.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, storage.ErrPartialLine) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read channel %s: %w", name, err)
		}
		e, err := pulse.ParseEvent(line)
		if err != nil {
			s.logger.Debug("Dump stopped at bad record", "channel", name, "error", err)
			return events, nil
		}
		events = append(events, e)
	}
}

// Play replays channel ch without a device, reporting every key level change
// to sink with the playback clock time. It returns when the recording is
// exhausted or ctx is done.
func (s *KeyCaptureService) Play(ctx context.Context, ch int, sink func(at int64, level bool)) error {
	cfg := s.cfg

	name := cfg.ChannelName(ch)
	if name == "" {
		return fmt.Errorf("channel %d out of range 1..%d", ch, len(cfg.Channels))
	}

	rec := recorder.NewRecorder(s.store, s.clock, cfg.Timing.PlaybackDelayMs, s.logger)
	if !rec.Initialize() {
		return fmt.Errorf("storage unavailable")
	}
	if !rec.OpenForPlayback(name) {
		s.setLastError(fmt.Sprintf("Failed to play channel %d", ch))
		return fmt.Errorf("channel %d (%s) has nothing to play", ch, name)
	}
	defer rec.Close()
	s.clearLastError()

	key := pin.Observe(pin.NewSimOutput(nil), func(level bool) {
		if sink != nil {
			sink(s.clock.NowMillis(), level)
		}
	})

	for rec.PlaybackActive() {
		if err := ctx.Err(); err != nil {
			if key.Level() {
				key.Write(false)
			}
			return err
		}
		rec.PlayBackKeying(key, nil)
		s.clock.Sleep(cfg.Timing.LoopDelayMs)
	}
	return nil
}

// NewDevice builds a device on the service's store and configuration.
func (s *KeyCaptureService) NewDevice(lines device.Lines, clock pin.Clock) *device.Device {
	cfg := s.cfg

	rec := recorder.NewRecorder(s.store, clock, cfg.Timing.PlaybackDelayMs, s.logger)
	return device.New(lines, clock, rec, device.Options{
		Channels:    cfg.Channels,
		Thresholds:  cfg.Thresholds(),
		Report:      cfg.ReportTiming(),
		LoopDelay:   cfg.Timing.LoopDelayMs,
		StartupWait: cfg.Timing.StartupWaitMs,
	}, s.logger)
}

// GetConfig returns the current configuration
func (s *KeyCaptureService) GetConfig() *config.Config {
	return s.cfg
}

func (s *KeyCaptureService) Close() error {
	return s.store.Close()
}

// GetLastError returns the last error message
func (s *KeyCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *KeyCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
	slog.Debug("Service error recorded", "error", err)
}

func (s *KeyCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
