package client

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"duoboard/internal/board"
	"duoboard/internal/ws"
)

// Subscription is a live feed of a room's document. The callback
// receives the full current state on every change by any member,
// including this client.
type Subscription struct {
	conn *websocket.Conn

	mu       sync.Mutex
	canceled bool
	once     sync.Once
	done     chan struct{}
}

// Subscribe opens a live subscription. onUpdate is invoked
// sequentially from a single goroutine with the full paths and images
// collections; implementations should replace local state wholesale
// rather than merging. The first delivery is the current document.
//
// The subscription must be canceled when the board leaves the screen
// or the room changes; Cancel guarantees no further callbacks.
func (c *Client) Subscribe(ctx context.Context, code string, onUpdate func(*board.Snapshot)) (*Subscription, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	wsURL, err := c.websocketURL(code, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sub := &Subscription{
		conn: conn,
		done: make(chan struct{}),
	}

	go sub.readLoop(code, onUpdate)
	return sub, nil
}

func (s *Subscription) readLoop(code string, onUpdate func(*board.Snapshot)) {
	defer close(s.done)
	defer s.conn.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := ws.DecodeFrame(data)
		if err != nil {
			// Malformed documents are rejected at the boundary, never
			// handed to the render layer.
			log.Printf("Dropping malformed frame for room %s: %v", code, err)
			continue
		}
		if frame.Type != ws.FrameSnapshot {
			continue
		}

		// The cancel flag and the callback share one critical section,
		// so a Cancel that has returned can never be followed by a
		// delivery.
		s.mu.Lock()
		if !s.canceled {
			onUpdate(frame.Room)
		}
		s.mu.Unlock()
	}
}

// Cancel tears down the subscription. It is idempotent and safe from
// any goroutine; once it returns, onUpdate will not be invoked again.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.canceled = true
		s.mu.Unlock()
		s.conn.Close()
	})
}

// Done is closed when the read loop has exited, whether by Cancel or
// by a server-side close.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (c *Client) websocketURL(code, token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("room", code)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
