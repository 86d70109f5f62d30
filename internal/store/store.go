package store

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"duoboard/internal/board"
)

// Store is the authoritative room document store. Strokes, images and
// members are append-only rows; the per-room document handed to
// subscribers is assembled on demand by Snapshot.
type Store struct {
	db *sql.DB
}

type Room struct {
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode for concurrent readers while the hub writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Store initialized at %s", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_members (
		room_code TEXT NOT NULL,
		user_id TEXT NOT NULL,
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_code, user_id),
		FOREIGN KEY (room_code) REFERENCES rooms(code) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS strokes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		path TEXT NOT NULL,
		color TEXT NOT NULL,
		width INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		FOREIGN KEY (room_code) REFERENCES rooms(code) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_strokes_dedupe ON strokes(room_code, content_hash);
	CREATE INDEX IF NOT EXISTS idx_strokes_room ON strokes(room_code);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		storage_url TEXT NOT NULL,
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		ts INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		FOREIGN KEY (room_code) REFERENCES rooms(code) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_images_dedupe ON images(room_code, content_hash);
	CREATE INDEX IF NOT EXISTS idx_images_room ON images(room_code);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Room operations

// CreateRoom creates a room with the creator as its first member. The
// code is generated client-side; a colliding code simply fails the
// primary-key insert.
func (s *Store) CreateRoom(code, name, creatorID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO rooms (code, name) VALUES (?, ?)",
		code, name,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO room_members (room_code, user_id) VALUES (?, ?)",
		code, creatorID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetRoom(code string) (*Room, error) {
	row := s.db.QueryRow(
		"SELECT code, name, created_at, updated_at FROM rooms WHERE code = ?",
		code,
	)

	var room Room
	err := row.Scan(&room.Code, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// RoomExists reports whether a room with the given code has been created.
func (s *Store) RoomExists(code string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM rooms WHERE code = ?", code).Scan(&n)
	return n > 0, err
}

// JoinRoom adds userID to the room's member set. Joining is a set
// union: joining twice with the same user leaves the membership
// unchanged. Returns false when the room does not exist.
func (s *Store) JoinRoom(code, userID string) (bool, error) {
	exists, err := s.RoomExists(code)
	if err != nil || !exists {
		return false, err
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO room_members (room_code, user_id) VALUES (?, ?)",
		code, userID,
	); err != nil {
		return false, err
	}
	return true, s.touchRoom(code)
}

func (s *Store) touchRoom(code string) error {
	_, err := s.db.Exec(
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE code = ?",
		code,
	)
	return err
}

// Stroke and image operations

// AppendStroke appends one stroke to the room document. The append has
// array-union semantics: a stroke identical by value to one already in
// the room is silently dropped.
func (s *Store) AppendStroke(code string, stroke board.Stroke) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO strokes (room_code, path, color, width, ts, user_id, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code, stroke.Path, stroke.Color, stroke.Width, stroke.Timestamp, stroke.UserID, stroke.ContentHash(),
	)
	if err != nil {
		return err
	}
	return s.touchRoom(code)
}

// AppendImage appends one image placement, with the same union
// semantics as AppendStroke.
func (s *Store) AppendImage(code string, img board.Image) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO images (room_code, storage_url, x, y, ts, user_id, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code, img.StorageURL, img.X, img.Y, img.Timestamp, img.UserID, img.ContentHash(),
	)
	if err != nil {
		return err
	}
	return s.touchRoom(code)
}

// ClearBoard resets paths and images to empty in one transaction.
// Members and the room itself are untouched; a clear is not a delete.
func (s *Store) ClearBoard(code string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM strokes WHERE room_code = ?", code); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM images WHERE room_code = ?", code); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE code = ?", code,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot assembles the full current document for a room: members in
// join order, strokes and images in insertion order. Returns (nil, nil)
// when the room does not exist.
func (s *Store) Snapshot(code string) (*board.Snapshot, error) {
	room, err := s.GetRoom(code)
	if err != nil || room == nil {
		return nil, err
	}

	snap := &board.Snapshot{
		Code:      room.Code,
		Name:      room.Name,
		CreatedAt: room.CreatedAt,
		Members:   []string{},
		Paths:     []board.Stroke{},
		Images:    []board.Image{},
	}

	rows, err := s.db.Query(
		"SELECT user_id FROM room_members WHERE room_code = ? ORDER BY joined_at ASC, user_id ASC",
		code,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		snap.Members = append(snap.Members, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	strokeRows, err := s.db.Query(
		"SELECT path, color, width, ts, user_id FROM strokes WHERE room_code = ? ORDER BY id ASC",
		code,
	)
	if err != nil {
		return nil, err
	}
	defer strokeRows.Close()
	for strokeRows.Next() {
		var st board.Stroke
		if err := strokeRows.Scan(&st.Path, &st.Color, &st.Width, &st.Timestamp, &st.UserID); err != nil {
			return nil, err
		}
		snap.Paths = append(snap.Paths, st)
	}
	if err := strokeRows.Err(); err != nil {
		return nil, err
	}

	imgRows, err := s.db.Query(
		"SELECT storage_url, x, y, ts, user_id FROM images WHERE room_code = ? ORDER BY id ASC",
		code,
	)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var img board.Image
		if err := imgRows.Scan(&img.StorageURL, &img.X, &img.Y, &img.Timestamp, &img.UserID); err != nil {
			return nil, err
		}
		snap.Images = append(snap.Images, img)
	}
	if err := imgRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// ListRooms returns rooms ordered by most recent activity.
func (s *Store) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := s.db.Query(
		"SELECT code, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.Code, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// RoomsUpdatedSince returns codes of rooms touched after t.
func (s *Store) RoomsUpdatedSince(t time.Time) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT code FROM rooms WHERE updated_at > ? ORDER BY updated_at DESC",
		t.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Stats

func (s *Store) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	var roomCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var strokeCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM strokes").Scan(&strokeCount); err != nil {
		return nil, err
	}
	stats["stroke_count"] = strokeCount

	var imageCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&imageCount); err != nil {
		return nil, err
	}
	stats["image_count"] = imageCount

	return stats, nil
}
