package ws

import (
	"encoding/json"
	"fmt"

	"duoboard/internal/board"
)

// Frame type for server-to-client traffic. The server only ever pushes
// full documents; there is no delta encoding.
type FrameType string

const (
	// Full current room document, sent on subscribe and after every
	// mutation by any member, the originator included.
	FrameSnapshot FrameType = "snapshot"

	// Terminal error, sent before the server closes the connection.
	FrameError FrameType = "error"
)

type Frame struct {
	Type  FrameType       `json:"type"`
	Room  *board.Snapshot `json:"room,omitempty"`
	Error string          `json:"error,omitempty"`
}

// EncodeSnapshot wraps a room document in a snapshot frame.
func EncodeSnapshot(snap *board.Snapshot) ([]byte, error) {
	return json.Marshal(Frame{Type: FrameSnapshot, Room: snap})
}

// DecodeFrame parses and validates one wire frame. Subscribers decode
// into the typed model here, at the boundary, rather than trusting
// payload shape downstream.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case FrameSnapshot:
		if f.Room == nil {
			return nil, fmt.Errorf("snapshot frame without room document")
		}
		if !board.ValidCode(f.Room.Code) {
			return nil, fmt.Errorf("snapshot frame with bad room code %q", f.Room.Code)
		}
	case FrameError:
		if f.Error == "" {
			return nil, fmt.Errorf("error frame without message")
		}
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return &f, nil
}
