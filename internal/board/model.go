package board

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// One continuous pointer gesture, immutable once committed.
type Stroke struct {
	Path      string `json:"path"`
	Color     string `json:"color"`
	Width     int    `json:"width"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// An uploaded image placed on the board. Placement is fixed at the
// origin; there is no drag-to-position.
type Image struct {
	StorageURL string  `json:"storage_url"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Timestamp  int64   `json:"timestamp"`
	UserID     string  `json:"user_id"`
}

// The full authoritative state of a room, as delivered to every
// live subscriber on every change.
type Snapshot struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
	Paths     []Stroke  `json:"paths"`
	Images    []Image   `json:"images"`
}

// ContentHash identifies a stroke by value. Appends are deduplicated on
// this hash, so committing the exact same stroke twice is a no-op.
func (s Stroke) ContentHash() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d|%s", s.Path, s.Color, s.Width, s.Timestamp, s.UserID)))
	return hex.EncodeToString(h[:])
}

func (img Image) ContentHash() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%g|%g|%d|%s", img.StorageURL, img.X, img.Y, img.Timestamp, img.UserID)))
	return hex.EncodeToString(h[:])
}

const (
	CodeLength = 6
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode produces a six-character room code drawn uniformly from
// [A-Z0-9]. There is no uniqueness check against existing rooms; the
// 36^6 keyspace is relied on for collision avoidance.
func GenerateCode() string {
	// Bytes at or above the largest multiple of the alphabet size are
	// rejected; reducing them modulo 36 would skew the first characters.
	const limit = 256 - 256%len(codeChars)

	code := make([]byte, 0, CodeLength)
	buf := make([]byte, 16)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("room code entropy: %v", err))
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, codeChars[int(b)%len(codeChars)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code)
}

// ValidCode reports whether code is a well-formed room code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
