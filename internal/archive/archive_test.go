package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"duoboard/internal/board"
	"duoboard/internal/store"
)

func setupTestService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()

	tmpDir := t.TempDir()
	st, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := filepath.Join(tmpDir, "archive")
	return New(st, Config{Interval: time.Hour, Dir: dir}), st, dir
}

func TestArchiveNowWritesSnapshot(t *testing.T) {
	svc, st, dir := setupTestService(t)

	if err := st.CreateRoom("X7K2PQ", "Amor Eterno", "u1"); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	stroke := board.Stroke{Path: "M 1 1 L 2 2", Color: "#000000", Width: 2, Timestamp: 1, UserID: "u1"}
	if err := st.AppendStroke("X7K2PQ", stroke); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if err := svc.ArchiveNow("X7K2PQ"); err != nil {
		t.Fatalf("ArchiveNow failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "X7K2PQ.json"))
	if err != nil {
		t.Fatalf("Archive file missing: %v", err)
	}

	var snap board.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Archive file should be valid JSON: %v", err)
	}
	if snap.Code != "X7K2PQ" || len(snap.Paths) != 1 || snap.Paths[0] != stroke {
		t.Errorf("Archived snapshot mismatch: %+v", snap)
	}
}

func TestArchiveNowMissingRoomWritesNothing(t *testing.T) {
	svc, _, dir := setupTestService(t)

	if err := svc.ArchiveNow("ZZZZZZ"); err != nil {
		t.Fatalf("Missing room should not error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ZZZZZZ.json")); !os.IsNotExist(err) {
		t.Error("Missing room must not produce an archive file")
	}
}

func TestArchiveOverwritesPreviousExport(t *testing.T) {
	svc, st, dir := setupTestService(t)

	if err := st.CreateRoom("AAAAAA", "room", "u1"); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	if err := st.AppendStroke("AAAAAA", board.Stroke{Path: "M 1 1 L 2 2", Color: "#000000", Width: 2, Timestamp: 1, UserID: "u1"}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := svc.ArchiveNow("AAAAAA"); err != nil {
		t.Fatalf("ArchiveNow failed: %v", err)
	}

	if err := st.ClearBoard("AAAAAA"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if err := svc.ArchiveNow("AAAAAA"); err != nil {
		t.Fatalf("ArchiveNow failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "AAAAAA.json"))
	if err != nil {
		t.Fatalf("Archive file missing: %v", err)
	}
	var snap board.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Archive file should be valid JSON: %v", err)
	}
	if len(snap.Paths) != 0 {
		t.Errorf("Export should reflect the cleared board, got %d paths", len(snap.Paths))
	}
}

func TestStartStop(t *testing.T) {
	svc, st, dir := setupTestService(t)
	svc.config.Interval = 10 * time.Millisecond

	if err := st.CreateRoom("BBBBBB", "room", "u1"); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	svc.Start()
	defer svc.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(dir, "BBBBBB.json")); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Service did not export the active room in time")
}
