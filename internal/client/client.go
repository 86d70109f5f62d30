// Package client implements the board-facing side of the system: room
// identity operations, the synchronization client, and the anonymous
// session bootstrap. All remote failures surface as the sentinel
// errors in errors.go; nothing is retried automatically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"duoboard/internal/board"
	"duoboard/internal/localstore"
)

type Client struct {
	baseURL string
	http    *http.Client
	flags   *localstore.Store

	session session
}

// New creates a client for the given server base URL, e.g.
// "http://localhost:8080". flags may be nil; with a local store the
// anonymous identity survives restarts.
func New(baseURL string, flags *localstore.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		flags:   flags,
	}
}

// GenerateCode produces a fresh room code. Codes are generated
// client-side with no uniqueness check; creation fails on the rare
// collision and the user retries with a new code.
func (c *Client) GenerateCode() string {
	return board.GenerateCode()
}

// CreateRoom creates a room and makes this participant its first
// member.
func (c *Client) CreateRoom(ctx context.Context, code, name string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, err := c.postJSON(ctx, "/api/rooms", token, map[string]string{
		"code": code,
		"name": name,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%w: create room returned %d", ErrBackendUnavailable, status)
	}

	c.rememberRoom(code, name)
	return nil
}

// RoomExists checks whether a room code addresses a created room.
func (c *Client) RoomExists(ctx context.Context, code string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/rooms/"+code, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: room lookup returned %d", ErrBackendUnavailable, resp.StatusCode)
	}
}

// JoinRoom adds this participant to the room's member set. Returns
// false without error when the room does not exist; joining twice is a
// no-op on the membership.
func (c *Client) JoinRoom(ctx context.Context, code string) (bool, error) {
	token, err := c.token(ctx)
	if err != nil {
		return false, err
	}

	status, err := c.postJSON(ctx, "/api/rooms/"+code+"/join", token, struct{}{}, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		c.rememberRoom(code, "")
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: join returned %d", ErrBackendUnavailable, status)
	}
}

// CommitPath appends one finished stroke to the room document. The
// timestamp and participant attribution are attached here, at commit
// time.
func (c *Client) CommitPath(ctx context.Context, code, pathData, color string, width int) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, err := c.postJSON(ctx, "/api/rooms/"+code+"/paths", token, map[string]any{
		"path":      pathData,
		"color":     color,
		"width":     width,
		"timestamp": time.Now().UnixMilli(),
	}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return ErrRoomNotFound
	default:
		return fmt.Errorf("%w: commit path returned %d", ErrBackendUnavailable, status)
	}
}

// CommitImage uploads the binary to the object store, then appends the
// placement to the room document. A failed upload commits nothing.
func (c *Client) CommitImage(ctx context.Context, code string, r io.Reader, filename string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	url, err := c.upload(ctx, token, r, filename)
	if err != nil {
		return err
	}

	status, err := c.postJSON(ctx, "/api/rooms/"+code+"/images", token, map[string]any{
		"storage_url": url,
		"timestamp":   time.Now().UnixMilli(),
	}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return ErrRoomNotFound
	default:
		return fmt.Errorf("%w: commit image returned %d", ErrBackendUnavailable, status)
	}
}

// ClearBoard resets the room's paths and images to empty. Not
// undoable; callers confirm with the user first.
func (c *Client) ClearBoard(ctx context.Context, code string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, err := c.postJSON(ctx, "/api/rooms/"+code+"/clear", token, struct{}{}, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrRoomNotFound
	default:
		return fmt.Errorf("%w: clear returned %d", ErrBackendUnavailable, status)
	}
}

func (c *Client) upload(ctx context.Context, token string, r io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.forgetIdentity()
		return "", fmt.Errorf("%w: cached identity rejected", ErrAuthUnavailable)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: upload returned %d", ErrUploadFailed, resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.URL == "" {
		return "", fmt.Errorf("%w: bad upload response", ErrUploadFailed)
	}
	return out.URL, nil
}

// postJSON posts a JSON body and returns the status code. Transport
// failures map to ErrBackendUnavailable; out is decoded on 2xx when
// non-nil.
func (c *Client) postJSON(ctx context.Context, path, token string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	// A rejected token means the cached identity has expired. Drop it
	// so the next action bootstraps a fresh anonymous participant.
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		c.forgetIdentity()
		return resp.StatusCode, fmt.Errorf("%w: cached identity rejected", ErrAuthUnavailable)
	}

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: bad response body", ErrBackendUnavailable)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) rememberRoom(code, name string) {
	if c.flags == nil {
		return
	}
	if err := c.flags.SetLastRoom(localstore.LastRoom{
		Code:     code,
		Name:     name,
		JoinedAt: time.Now(),
	}); err != nil {
		// Cache only; losing it costs the user one join prompt.
		return
	}
}
