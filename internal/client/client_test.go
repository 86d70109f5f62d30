package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"duoboard/internal/api"
	"duoboard/internal/auth"
	"duoboard/internal/blob"
	"duoboard/internal/board"
	"duoboard/internal/canvas"
	"duoboard/internal/localstore"
	"duoboard/internal/store"
	"duoboard/internal/ws"
)

func setupTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "duoboard-client-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	st, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	blobs, err := blob.New(filepath.Join(tmpDir, "blobs"), "http://example.test/files")
	if err != nil {
		st.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create blob store: %v", err)
	}

	hub := ws.NewHub(st)
	go hub.Run()

	server := httptest.NewServer(api.New(hub, st, auth.NewManager("test-secret", time.Hour), blobs).Router())

	cleanup := func() {
		server.Close()
		st.Close()
		os.RemoveAll(tmpDir)
	}

	return server, cleanup
}

func collectSnapshots(t *testing.T, c *Client, code string) (*Subscription, chan *board.Snapshot) {
	t.Helper()

	updates := make(chan *board.Snapshot, 16)
	sub, err := c.Subscribe(context.Background(), code, func(snap *board.Snapshot) {
		updates <- snap
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return sub, updates
}

func nextSnapshot(t *testing.T, updates chan *board.Snapshot) *board.Snapshot {
	t.Helper()
	select {
	case snap := <-updates:
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("No snapshot delivered in time")
		return nil
	}
}

func TestEnsureIdentityIsStable(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := New(server.URL, nil)
	ctx := context.Background()

	uid1, err := c.EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	uid2, err := c.EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if uid1 == "" || uid1 != uid2 {
		t.Errorf("Identity must be stable for the session: %q vs %q", uid1, uid2)
	}
}

func TestIdentitySurvivesRestartWithLocalStore(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	tmpDir := t.TempDir()
	flags, err := localstore.Open(filepath.Join(tmpDir, "flags.db"))
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	defer flags.Close()

	ctx := context.Background()

	uid1, err := New(server.URL, flags).EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}

	// A fresh client with the same local store keeps the identity.
	uid2, err := New(server.URL, flags).EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if uid1 != uid2 {
		t.Errorf("Identity should survive restart: %q vs %q", uid1, uid2)
	}

	// Sign-out clears it; the next bootstrap mints a new participant.
	second := New(server.URL, flags)
	if _, err := second.EnsureIdentity(ctx); err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if err := second.SignOut(); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	uid3, err := New(server.URL, flags).EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if uid3 == uid1 {
		t.Error("Sign-out should discard the old identity")
	}
}

func TestStaleCachedIdentityIsDiscarded(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()

	helper := New(server.URL, nil)
	code := helper.GenerateCode()
	if err := helper.CreateRoom(ctx, code, "room"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	flags, err := localstore.Open(filepath.Join(t.TempDir(), "flags.db"))
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	defer flags.Close()

	// A token the server never issued, as if the cached identity
	// expired between launches.
	if err := flags.SetIdentity(localstore.Identity{UID: "stale", Token: "not-a-token"}); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}

	c := New(server.URL, flags)
	if err := c.CommitPath(ctx, code, "M 1 1 L 2 2", "#000000", 2); !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("Expected ErrAuthUnavailable for a rejected token, got %v", err)
	}

	// The rejected identity must be gone so the next action recovers
	// with a freshly minted participant.
	if id, _ := flags.Identity(); id != nil {
		t.Error("Rejected identity should be cleared from the local store")
	}
	uid, err := c.EnsureIdentity(ctx)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if uid == "stale" {
		t.Error("Fresh identity should replace the rejected one")
	}
	if err := c.CommitPath(ctx, code, "M 1 1 L 2 2", "#000000", 2); err != nil {
		t.Errorf("Commit should succeed after re-minting: %v", err)
	}
}

func TestAuthUnavailable(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	if _, err := c.EnsureIdentity(context.Background()); !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("Expected ErrAuthUnavailable, got %v", err)
	}
}

func TestBackendUnavailable(t *testing.T) {
	server, cleanup := setupTestServer(t)

	c := New(server.URL, nil)
	ctx := context.Background()
	if _, err := c.EnsureIdentity(ctx); err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}

	cleanup()

	if err := c.CommitPath(ctx, "X7K2PQ", "M 1 1 L 2 2", "#000000", 2); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := c.RoomExists(ctx, "X7K2PQ"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestJoinFlowForMissingRoom(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := New(server.URL, nil)
	ctx := context.Background()

	exists, err := c.RoomExists(ctx, "ZZZZZZ")
	if err != nil {
		t.Fatalf("RoomExists failed: %v", err)
	}
	if exists {
		t.Fatal("Never-created room must not exist")
	}

	joined, err := c.JoinRoom(ctx, "ZZZZZZ")
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if joined {
		t.Fatal("Joining a missing room must report false")
	}

	// The failed join must not have created anything.
	exists, _ = c.RoomExists(ctx, "ZZZZZZ")
	if exists {
		t.Error("Failed join must not mutate any document")
	}
}

func TestTwoClientCollaboration(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	alice := New(server.URL, nil)
	bob := New(server.URL, nil)

	code := "X7K2PQ"
	if err := alice.CreateRoom(ctx, code, "Amor Eterno"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	joined, err := bob.JoinRoom(ctx, code)
	if err != nil || !joined {
		t.Fatalf("JoinRoom failed: joined=%v err=%v", joined, err)
	}

	aliceSub, aliceUpdates := collectSnapshots(t, alice, code)
	defer aliceSub.Cancel()
	bobSub, bobUpdates := collectSnapshots(t, bob, code)
	defer bobSub.Cancel()

	// Both start from the catch-up snapshot.
	nextSnapshot(t, aliceUpdates)
	first := nextSnapshot(t, bobUpdates)
	if len(first.Members) != 2 {
		t.Errorf("Expected both members in the catch-up snapshot, got %v", first.Members)
	}

	// Alice draws a stroke through the gesture surface.
	cv := canvas.New()
	cv.SetBrush(canvas.Brush{Color: "#0000FF", Width: 4})
	cv.TouchStart(10, 10)
	cv.TouchMove(50, 50)
	path, brush, ok := cv.TouchEnd()
	if !ok {
		t.Fatal("Gesture should produce a committable stroke")
	}

	if err := alice.CommitPath(ctx, code, path, brush.Color, brush.Width); err != nil {
		t.Fatalf("CommitPath failed: %v", err)
	}

	aliceUID, _ := alice.EnsureIdentity(ctx)

	// Bob receives the stroke, and so does Alice herself: the
	// originator is not excluded from fan-out.
	for name, updates := range map[string]chan *board.Snapshot{"bob": bobUpdates, "alice": aliceUpdates} {
		snap := nextSnapshot(t, updates)
		if len(snap.Paths) != 1 {
			t.Fatalf("%s: expected 1 stroke, got %d", name, len(snap.Paths))
		}
		stroke := snap.Paths[0]
		if stroke.Path != "M 10 10 L 50 50" || stroke.Color != "#0000FF" || stroke.Width != 4 {
			t.Errorf("%s: stroke mismatch: %+v", name, stroke)
		}
		if stroke.UserID != aliceUID {
			t.Errorf("%s: stroke attributed to %q, want %q", name, stroke.UserID, aliceUID)
		}
	}
}

func TestClearBoardPropagates(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := New(server.URL, nil)

	code := c.GenerateCode()
	if err := c.CreateRoom(ctx, code, "room"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := c.CommitPath(ctx, code, "M 1 1 L 2 2", "#000000", 2); err != nil {
		t.Fatalf("CommitPath failed: %v", err)
	}

	sub, updates := collectSnapshots(t, c, code)
	defer sub.Cancel()

	snap := nextSnapshot(t, updates)
	if len(snap.Paths) != 1 {
		t.Fatalf("Catch-up snapshot should carry the stroke, got %d", len(snap.Paths))
	}

	if err := c.ClearBoard(ctx, code); err != nil {
		t.Fatalf("ClearBoard failed: %v", err)
	}

	snap = nextSnapshot(t, updates)
	if len(snap.Paths) != 0 || len(snap.Images) != 0 {
		t.Errorf("Post-clear snapshot must be empty: %d paths, %d images", len(snap.Paths), len(snap.Images))
	}
}

func TestCancelStopsDeliveries(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := New(server.URL, nil)

	code := c.GenerateCode()
	if err := c.CreateRoom(ctx, code, "room"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	sub, updates := collectSnapshots(t, c, code)
	nextSnapshot(t, updates) // catch-up

	sub.Cancel()
	sub.Cancel() // idempotent

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Read loop should exit after Cancel")
	}

	if err := c.CommitPath(ctx, code, "M 3 3 L 4 4", "#000000", 2); err != nil {
		t.Fatalf("CommitPath failed: %v", err)
	}

	select {
	case snap := <-updates:
		t.Fatalf("No delivery may follow Cancel, got snapshot with %d paths", len(snap.Paths))
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSubscribeMissingRoom(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := New(server.URL, nil)
	_, err := c.Subscribe(context.Background(), "ZZZZZZ", func(*board.Snapshot) {})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestCommitImageFlow(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := New(server.URL, nil)

	code := c.GenerateCode()
	if err := c.CreateRoom(ctx, code, "room"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if err := c.CommitImage(ctx, code, strings.NewReader("jpeg-bytes"), "photo.jpg"); err != nil {
		t.Fatalf("CommitImage failed: %v", err)
	}

	sub, updates := collectSnapshots(t, c, code)
	defer sub.Cancel()

	snap := nextSnapshot(t, updates)
	if len(snap.Images) != 1 {
		t.Fatalf("Expected 1 image, got %d", len(snap.Images))
	}
	img := snap.Images[0]
	if img.StorageURL == "" || !strings.HasSuffix(img.StorageURL, ".jpg") {
		t.Errorf("Unexpected storage URL %q", img.StorageURL)
	}
	if img.X != 0 || img.Y != 0 {
		t.Errorf("Image placement must be the origin, got (%g, %g)", img.X, img.Y)
	}
}
