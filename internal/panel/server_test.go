package panel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/keycapture/internal/config"
	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/service"
	"github.com/gorilla/websocket"
)

type rawMessage struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fixture struct {
	board *device.SimBoard
	dev   *device.Device
	srv   *Server
	http  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Directory = t.TempDir()
	svc, err := service.New(cfg, nil)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	clk := pin.NewFakeClock(0)
	board := device.NewSimBoard(clk)
	dev := svc.NewDevice(board.Lines(), clk)
	srv := New(svc, dev, board, "127.0.0.1:0", nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{board: board, dev: dev, srv: srv, http: ts}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg rawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap SnapshotPayload
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Status.Channel != 1 || snap.Status.State != device.StateIdle {
		t.Errorf("Unexpected status %+v", snap.Status)
	}
	if len(snap.Lines) != 7 || len(snap.Channels) != 4 {
		t.Errorf("Expected 7 lines and 4 channels, got %d and %d", len(snap.Lines), len(snap.Channels))
	}

	resp, err = http.Post(f.http.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestChannelsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/channels")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Channels []service.ChannelInfo `json:"channels"`
		Current  int                   `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Channels) != 4 || body.Current != 1 {
		t.Errorf("Unexpected channels response %+v", body)
	}
}

func TestIndex(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML page, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(f.http.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestWebsocket_SnapshotThenUpdates(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	msg := readMessage(t, conn)
	if msg.Type != MsgSnapshot {
		t.Fatalf("Expected snapshot first, got %s", msg.Type)
	}

	f.board.Lines().ShortLED.Write(true)
	msg = readMessage(t, conn)
	var line LinePayload
	json.Unmarshal(msg.Payload, &line)
	if msg.Type != MsgLine || line.Name != device.LineShort || !line.Level {
		t.Errorf("Expected short line high, got %s %+v", msg.Type, line)
	}

	f.dev.Initialize()
	msg = readMessage(t, conn)
	var st device.Status
	json.Unmarshal(msg.Payload, &st)
	if msg.Type != MsgStatus || !st.StoreReady {
		t.Errorf("Expected status with store ready, got %s %+v", msg.Type, st)
	}
}

func TestWebsocket_Commands(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(Command{Type: "press", Line: device.LineKey}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !f.board.Level(device.LineKey) {
		if time.Now().After(deadline) {
			t.Fatal("Expected key pressed by remote command")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.WriteJSON(Command{Type: "press", Line: device.LineShort})
	msg := readMessage(t, conn)
	if msg.Type != MsgError {
		t.Errorf("Expected error for output line, got %s", msg.Type)
	}
	if f.board.Level(device.LineShort) {
		t.Error("Expected output line unchanged")
	}

	conn.WriteJSON(Command{Type: "hold", Line: device.LineMode})
	if msg := readMessage(t, conn); msg.Type != MsgError {
		t.Errorf("Expected error for unknown command, got %s", msg.Type)
	}
}

func TestBroadcaster_ClientLifecycle(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readMessage(t, conn)

	if f.srv.broadcaster.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", f.srv.broadcaster.ClientCount())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.srv.broadcaster.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected client removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebsocket_ErrorOnlyToSender(t *testing.T) {
	f := newFixture(t)
	sender := f.dial(t)
	readMessage(t, sender)
	other := f.dial(t)
	readMessage(t, other)

	sender.WriteJSON(Command{Type: "press", Line: "pedal"})
	if msg := readMessage(t, sender); msg.Type != MsgError {
		t.Fatalf("Expected error for sender, got %s", msg.Type)
	}

	f.board.Lines().LongLED.Write(true)
	if msg := readMessage(t, other); msg.Type != MsgLine {
		t.Errorf("Expected other client to see only the line change, got %s", msg.Type)
	}
}
