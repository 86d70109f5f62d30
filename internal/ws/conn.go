package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"duoboard/internal/auth"
	"duoboard/internal/board"
	"duoboard/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	messagesPerSecond = 20
	messageBurst      = 40
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is one live subscription to a room document.
type Conn struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	code        string
	userID      string
	rateLimiter *ratelimit.Limiter
}

// ServeWS upgrades an HTTP request into a room subscription. The
// subscriber authenticates with its identity token and immediately
// receives the current document as a catch-up snapshot.
func ServeWS(hub *Hub, verifier *auth.Manager, w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room")
	if !board.ValidCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	userID, err := verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	exists, err := hub.store.RoomExists(code)
	if err != nil {
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	conn := &Conn{
		hub:         hub,
		conn:        wsConn,
		send:        make(chan []byte, 64),
		code:        code,
		userID:      userID,
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	// The hub enqueues the catch-up snapshot during registration, so a
	// commit fanned out while this handshake was in flight is never
	// lost between the snapshot read and the registration.
	hub.register <- conn

	go conn.writePump()
	go conn.readPump()
}

// readPump drains the connection. Subscribers have nothing meaningful
// to say over this channel; mutations go through the REST API. Inbound
// frames are discarded, and a connection that floods is dropped.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (room %s, user %s): %v", c.code, c.userID, err)
			}
			break
		}
		if !c.rateLimiter.Allow() {
			log.Printf("Dropping flooding subscriber %s in room %s", c.userID, c.code)
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
