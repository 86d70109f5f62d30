// Package canvas holds the local, presentation-facing board state: the
// stroke currently being drawn and the last snapshot delivered by the
// synchronization client. It performs no I/O; committing a finished
// stroke is the caller's job.
package canvas

import (
	"fmt"

	"duoboard/internal/board"
)

type State int

const (
	Idle State = iota
	Drawing
)

// Local render attributes for the next stroke. Fixed at commit time.
type Brush struct {
	Color string
	Width int
}

func DefaultBrush() Brush {
	return Brush{Color: "#2196F3", Width: 4}
}

// Canvas is the single-gesture state machine of the board screen.
// It is not safe for concurrent use; the UI event loop owns it.
type Canvas struct {
	state   State
	brush   Brush
	current string

	// Last authoritative snapshot, replaced wholesale on every update.
	paths  []board.Stroke
	images []board.Image
}

func New() *Canvas {
	return &Canvas{brush: DefaultBrush()}
}

func (c *Canvas) State() State { return c.state }

func (c *Canvas) Brush() Brush { return c.brush }

func (c *Canvas) SetBrush(b Brush) { c.brush = b }

// TouchStart begins a new path at the touch coordinate.
func (c *Canvas) TouchStart(x, y float64) {
	c.current = fmt.Sprintf("M %g %g", x, y)
	c.state = Drawing
}

// TouchMove appends a line command for every sampled coordinate. There
// is no distance or time throttling.
func (c *Canvas) TouchMove(x, y float64) {
	if c.state != Drawing {
		return
	}
	c.current += fmt.Sprintf(" L %g %g", x, y)
}

// TouchEnd finishes the gesture and returns the stroke to commit. The
// returned ok is false when there is nothing to commit (pointer-up
// without a prior pointer-down). The finished stroke stays in the local
// render list so it does not flicker out while the commit's echo
// snapshot is in flight; the next ApplySnapshot replaces it with the
// authoritative copy.
func (c *Canvas) TouchEnd() (path string, brush Brush, ok bool) {
	path, brush = c.current, c.brush
	ok = c.state == Drawing && path != ""
	if ok {
		c.paths = append(c.paths, board.Stroke{Path: path, Color: brush.Color, Width: brush.Width})
	}
	c.current = ""
	c.state = Idle
	return path, brush, ok
}

// ApplySnapshot replaces the rendered collections with the authoritative
// document contents. Incoming snapshots are never diffed or merged
// against local state; the last delivered state wins entirely.
func (c *Canvas) ApplySnapshot(paths []board.Stroke, images []board.Image) {
	c.paths = append(c.paths[:0:0], paths...)
	c.images = append(c.images[:0:0], images...)
}

// Undo removes the most recent locally rendered stroke. It is purely
// local: the next snapshot delivery restores whatever the document
// holds, so the effect is transient unless the stroke was never
// committed remotely.
func (c *Canvas) Undo() bool {
	if len(c.paths) == 0 {
		return false
	}
	c.paths = c.paths[:len(c.paths)-1]
	return true
}

// Clear drops all local render state. The remote clear is issued
// separately, after user confirmation.
func (c *Canvas) Clear() {
	c.paths = nil
	c.images = nil
	c.current = ""
	c.state = Idle
}

// Render returns the strokes to draw, committed strokes first and the
// in-progress stroke (if any) layered last.
func (c *Canvas) Render() []board.Stroke {
	out := append([]board.Stroke(nil), c.paths...)
	if c.state == Drawing && c.current != "" {
		out = append(out, board.Stroke{Path: c.current, Color: c.brush.Color, Width: c.brush.Width})
	}
	return out
}

// Images returns the rendered image placements.
func (c *Canvas) Images() []board.Image {
	return append([]board.Image(nil), c.images...)
}
