package board

import "testing"

func TestParsePath(t *testing.T) {
	pts, err := ParsePath("M 10 10 L 50 50")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(pts))
	}
	if pts[0] != (Point{10, 10}) || pts[1] != (Point{50, 50}) {
		t.Errorf("Points mismatch: %+v", pts)
	}
}

func TestParsePathFractionalCoordinates(t *testing.T) {
	pts, err := ParsePath("M 1.5 -2.25 L 3 4.125")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pts[0].X != 1.5 || pts[0].Y != -2.25 {
		t.Errorf("First point mismatch: %+v", pts[0])
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"L 10 10",
		"M 10",
		"M 10 10 L 20",
		"M 10 10 M 20 20",
		"Z 10 10",
		"M ten ten",
	}
	for _, data := range bad {
		if _, err := ParsePath(data); err == nil {
			t.Errorf("Expected error for %q", data)
		}
	}
}

func TestEncodePathRoundTrip(t *testing.T) {
	original := "M 10 10 L 50 50 L 51.5 49"
	pts, err := ParsePath(original)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := EncodePath(pts); got != original {
		t.Errorf("Round trip mismatch: %q != %q", got, original)
	}
}

func TestEncodePathEmpty(t *testing.T) {
	if got := EncodePath(nil); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}
