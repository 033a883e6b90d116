// Package panel serves a live view of the simulated device over HTTP and
// websocket, and lets remote clients press its buttons.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/service"
	"github.com/gorilla/websocket"
)

// Server represents the web panel for a running device
type Server struct {
	service     service.Service
	device      *device.Device
	board       *device.SimBoard
	broadcaster *Broadcaster
	addr        string
	logger      *slog.Logger
}

// New creates a panel server and subscribes it to the board's line changes
// and the device's status changes.
func New(svc service.Service, dev *device.Device, board *device.SimBoard, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: svc,
		device:  dev,
		board:   board,
		addr:    addr,
		logger:  logger,
	}
	s.broadcaster = NewBroadcaster(s.snapshot, logger)

	board.Watch(func(name string, level bool, at int64) {
		s.broadcaster.Broadcast(WSMessage{
			Type:    MsgLine,
			Payload: LinePayload{Name: name, Level: level, At: at},
		})
	})
	dev.OnStatus(func(st device.Status) {
		s.broadcaster.Broadcast(WSMessage{Type: MsgStatus, Payload: st})
	})
	return s
}

// Handler returns the panel's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	_, port, _ := net.SplitHostPort(s.addr)
	s.logger.Info("Starting KeyCapture panel",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("panel server failed: %w", err)
	case <-ctx.Done():
	}

	s.broadcaster.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("panel shutdown: %w", err)
	}
	return nil
}

func (s *Server) snapshot() SnapshotPayload {
	return SnapshotPayload{
		Status:   s.device.Status(),
		Lines:    s.board.Levels(),
		Channels: s.device.Channels(),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	channels, err := s.service.Channels()
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Failed to list channels: %v", err), "operation", "channels")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channels": channels,
		"current":  s.device.Status().Channel,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	s.logger.Debug("Panel client connected", "remote", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Debug("Panel client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if err := s.apply(cmd); err != nil {
				s.logger.Debug("Panel command rejected", "type", cmd.Type, "line", cmd.Line, "error", err)
				s.broadcaster.SendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Error: err.Error()}})
			}
		}
	}()
}

func (s *Server) apply(cmd Command) error {
	switch cmd.Line {
	case device.LineKey, device.LineMode, device.LineChannel:
	default:
		return fmt.Errorf("unknown line %q", cmd.Line)
	}
	switch cmd.Type {
	case "press":
		return s.board.Set(cmd.Line, true)
	case "release":
		return s.board.Set(cmd.Line, false)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	s.logger.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>KeyCapture</title>
<style>
body { font-family: sans-serif; background: #111; color: #eee; padding: 1em; }
.lamp { display: inline-block; width: 1.2em; height: 1.2em; border-radius: 50%; background: #333; margin-right: .4em; vertical-align: middle; }
.on { background: #f5c542; }
button { font-size: 1.1em; margin: .3em; padding: .6em 1.2em; }
</style>
</head>
<body>
<h1>KeyCapture</h1>
<p id="status">connecting...</p>
<div id="lamps"></div>
<div>
<button data-line="key">Key</button>
<button data-line="mode">Mode</button>
<button data-line="channel">Channel</button>
</div>
<script>
const lines = {};
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
function render() {
  document.getElementById("lamps").innerHTML = ["short", "long", "key_out", "sidetone"].map(n =>
    '<span class="lamp' + (lines[n] ? ' on' : '') + '"></span>' + n).join(" ");
}
function showStatus(s) {
  document.getElementById("status").textContent = s.state + " on channel " + s.channel + " (" + s.channel_name + "), " + s.records + " records";
}
ws.onmessage = ev => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "snapshot") { Object.assign(lines, msg.payload.lines); showStatus(msg.payload.status); }
  if (msg.type === "line") { lines[msg.payload.name] = msg.payload.level; }
  if (msg.type === "status") { showStatus(msg.payload); }
  render();
};
document.querySelectorAll("button").forEach(b => {
  const send = type => ws.send(JSON.stringify({type: type, line: b.dataset.line}));
  b.addEventListener("pointerdown", () => send("press"));
  b.addEventListener("pointerup", () => send("release"));
});
render();
</script>
</body>
</html>`
