package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/keycapture/internal/config"
	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/pin"
)

func newTestService(t *testing.T, files map[string]string) (*KeyCaptureService, *pin.FakeClock) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Storage.Directory = dir

	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	clk := pin.NewFakeClock(0)
	svc.clock = clk
	return svc, clk
}

func TestChannels(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{
		"chnl1.txt": "0,100\n300,450\n",
		"chnl3.txt": "",
	})

	infos, err := svc.Channels()
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("Expected 4 channels, got %d", len(infos))
	}

	first := infos[0]
	if !first.Recorded || first.Records != 2 || first.DurationMs != 450 || first.KeyDownMs != 250 {
		t.Errorf("Unexpected channel 1 summary: %+v", first)
	}
	if infos[1].Recorded {
		t.Errorf("Expected channel 2 unrecorded, got %+v", infos[1])
	}
	if !infos[2].Recorded || infos[2].Records != 0 {
		t.Errorf("Expected channel 3 recorded but empty, got %+v", infos[2])
	}
	if infos[3].Index != 4 || infos[3].Name != "chnl4.txt" {
		t.Errorf("Unexpected channel 4: %+v", infos[3])
	}
}

func TestDump(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{
		"chnl2.txt": "10,20\n30,40\n50,45\n60,70\n",
	})

	events, err := svc.Dump(2)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(events) != 2 || events[1].Start != 30 || events[1].End != 40 {
		t.Errorf("Expected dump to stop before the invalid record, got %v", events)
	}

	if _, err := svc.Dump(0); err == nil {
		t.Error("Expected error for channel 0")
	}
	if _, err := svc.Dump(1); err == nil {
		t.Error("Expected error for unrecorded channel")
	}
}

func TestPlay(t *testing.T) {
	svc, clk := newTestService(t, map[string]string{
		"chnl1.txt": "0,100\n300,450\n",
	})

	type transition struct {
		at    int64
		level bool
	}
	var got []transition
	err := svc.Play(context.Background(), 1, func(at int64, level bool) {
		got = append(got, transition{at, level})
	})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Playback starts 100 ms after open at clock 0.
	want := []transition{{100, true}, {200, false}, {400, true}, {550, false}}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
	if clk.NowMillis() < 550 {
		t.Errorf("Expected clock past the last pulse, got %d", clk.NowMillis())
	}
	if svc.GetLastError() != "" {
		t.Errorf("Expected no error, got %q", svc.GetLastError())
	}
}

func TestPlay_Errors(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if err := svc.Play(context.Background(), 9, nil); err == nil {
		t.Error("Expected error for out-of-range channel")
	}
	if err := svc.Play(context.Background(), 1, nil); err == nil {
		t.Error("Expected error for empty channel")
	}
	if svc.GetLastError() == "" {
		t.Error("Expected last error to be recorded")
	}
}

func TestPlay_Cancelled(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"chnl1.txt": "0,100000\n"})

	ctx, cancel := context.WithCancel(context.Background())
	var last bool
	err := svc.Play(ctx, 1, func(at int64, level bool) {
		last = level
		if level {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if last {
		t.Error("Expected key released on cancel")
	}
}

func TestNewDevice(t *testing.T) {
	svc, clk := newTestService(t, nil)
	in := pin.NewSimInput(clk)
	d := svc.NewDevice(device.Lines{KeyIn: in, ModeIn: in, ChannelIn: in}, clk)

	if !d.Initialize() {
		t.Fatal("Expected device storage to initialize")
	}
	if s := d.Status(); s.ChannelName != "chnl1.txt" || s.State != device.StateIdle {
		t.Errorf("Unexpected device status %+v", s)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "tape"
	if _, err := New(cfg, nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
