package ws

import (
	"log"
	"sync"

	"duoboard/internal/store"
)

// The set of live room subscriptions. Every mutation to a room document
// is published here and fanned out as a full snapshot to every
// subscriber of that room, the originating client included.
type Hub struct {
	// Registered subscribers by room code
	rooms map[string]map[*Conn]bool

	// Snapshot frames to fan out
	publish chan *publication

	// Register requests from connections
	register chan *Conn

	// Unregister requests from connections
	unregister chan *Conn

	store *store.Store

	mu sync.RWMutex
}

type publication struct {
	Code string
	Data []byte
}

func NewHub(st *store.Store) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Conn]bool),
		publish:    make(chan *publication),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		store:      st,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[conn.code]; !ok {
				h.rooms[conn.code] = make(map[*Conn]bool)
			}
			h.rooms[conn.code][conn] = true
			count := len(h.rooms[conn.code])
			h.mu.Unlock()

			log.Printf("Subscriber joined room %s (total: %d)", conn.code, count)

			// The catch-up snapshot is loaded here, in the same loop that
			// fans out publications. A commit published while the
			// subscriber was still connecting is therefore either already
			// in this snapshot or still queued behind the registration.
			h.catchUp(conn)

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.rooms[conn.code]; ok {
				if _, ok := conns[conn]; ok {
					delete(conns, conn)
					close(conn.send)

					if len(conns) == 0 {
						delete(h.rooms, conn.code)
						log.Printf("Room %s has no subscribers left", conn.code)
					} else {
						log.Printf("Subscriber left room %s (remaining: %d)", conn.code, len(conns))
					}
				}
			}
			h.mu.Unlock()

		case pub := <-h.publish:
			h.mu.Lock()
			for conn := range h.rooms[pub.Code] {
				select {
				case conn.send <- pub.Data:
				default:
					// Slow subscriber; it will resubscribe with a
					// fresh catch-up snapshot.
					close(conn.send)
					delete(h.rooms[pub.Code], conn)
				}
			}
			if len(h.rooms[pub.Code]) == 0 {
				delete(h.rooms, pub.Code)
			}
			h.mu.Unlock()
		}
	}
}

// catchUp sends the current document to a newly registered subscriber.
func (h *Hub) catchUp(conn *Conn) {
	snap, err := h.store.Snapshot(conn.code)
	if err != nil {
		log.Printf("Catch-up: snapshot for room %s: %v", conn.code, err)
		return
	}
	if snap == nil {
		return
	}

	data, err := EncodeSnapshot(snap)
	if err != nil {
		log.Printf("Catch-up: encode snapshot for room %s: %v", conn.code, err)
		return
	}

	select {
	case conn.send <- data:
	default:
		h.mu.Lock()
		delete(h.rooms[conn.code], conn)
		if len(h.rooms[conn.code]) == 0 {
			delete(h.rooms, conn.code)
		}
		h.mu.Unlock()
		close(conn.send)
	}
}

// Publish assembles the current document for a room and broadcasts it
// to all subscribers. A missing room publishes nothing.
func (h *Hub) Publish(code string) {
	snap, err := h.store.Snapshot(code)
	if err != nil {
		log.Printf("Publish: snapshot for room %s: %v", code, err)
		return
	}
	if snap == nil {
		return
	}

	data, err := EncodeSnapshot(snap)
	if err != nil {
		log.Printf("Publish: encode snapshot for room %s: %v", code, err)
		return
	}
	h.publish <- &publication{Code: code, Data: data}
}

// GetRoomCount returns the number of rooms with live subscribers.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientCount returns the number of live subscribers across rooms.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.rooms {
		total += len(conns)
	}
	return total
}

// GetActiveRooms maps room codes to their live subscriber counts.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for code, conns := range h.rooms {
		active[code] = len(conns)
	}
	return active
}
