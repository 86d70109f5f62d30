package board

import (
	"fmt"
	"strconv"
	"strings"
)

// A single point of a vector path, in device-local coordinates.
type Point struct {
	X float64
	Y float64
}

// ParsePath decodes path data of the form "M x y L x y L x y ...".
// Paths are recorded in the capturing device's screen space and are not
// normalized by canvas size, so participants on differently sized
// screens will see strokes misaligned. That mirrors the captured data;
// callers must not try to rescale here.
func ParsePath(data string) ([]Point, error) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty path data")
	}

	var pts []Point
	i := 0
	for i < len(fields) {
		cmd := fields[i]
		if cmd != "M" && cmd != "L" {
			return nil, fmt.Errorf("unknown path command %q", cmd)
		}
		if cmd == "M" && i != 0 {
			return nil, fmt.Errorf("move command only allowed at start")
		}
		if cmd == "L" && i == 0 {
			return nil, fmt.Errorf("path must start with a move command")
		}
		if i+2 >= len(fields) {
			return nil, fmt.Errorf("truncated %s command", cmd)
		}
		x, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s x coordinate: %w", cmd, err)
		}
		y, err := strconv.ParseFloat(fields[i+2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s y coordinate: %w", cmd, err)
		}
		pts = append(pts, Point{X: x, Y: y})
		i += 3
	}
	return pts, nil
}

// EncodePath renders points back into path data. The first point becomes
// the move command, the rest line commands.
func EncodePath(pts []Point) string {
	if len(pts) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %s %s", trimFloat(pts[0].X), trimFloat(pts[0].Y))
	for _, p := range pts[1:] {
		fmt.Fprintf(&b, " L %s %s", trimFloat(p.X), trimFloat(p.Y))
	}
	return b.String()
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
