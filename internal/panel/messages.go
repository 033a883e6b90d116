package panel

import "github.com/audiolibrelab/keycapture/internal/device"

// MsgType identifies a websocket message.
type MsgType string

const (
	MsgSnapshot MsgType = "snapshot"
	MsgLine     MsgType = "line"
	MsgStatus   MsgType = "status"
	MsgError    MsgType = "error"
)

// WSMessage is the envelope of every outbound websocket message.
type WSMessage struct {
	Type    MsgType     `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full panel state, sent on connect.
type SnapshotPayload struct {
	Status   device.Status   `json:"status"`
	Lines    map[string]bool `json:"lines"`
	Channels []string        `json:"channels"`
}

// LinePayload reports one output line change.
type LinePayload struct {
	Name  string `json:"name"`
	Level bool   `json:"level"`
	At    int64  `json:"at"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Command is an inbound websocket message pressing or releasing a button.
type Command struct {
	Type string `json:"type"` // "press", "release"
	Line string `json:"line"` // "key", "mode", "channel"
}
