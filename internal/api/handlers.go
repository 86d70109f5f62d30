package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"duoboard/internal/auth"
	"duoboard/internal/blob"
	"duoboard/internal/board"
	"duoboard/internal/ratelimit"
	"duoboard/internal/store"
	"duoboard/internal/ws"
)

const (
	maxUploadBytes = 10 << 20
	writesPerSec   = 25
	writeBurst     = 50
)

type API struct {
	hub      *ws.Hub
	store    *store.Store
	auth     *auth.Manager
	blobs    *blob.Store
	limiters *ratelimit.ClientLimiters
}

func New(hub *ws.Hub, st *store.Store, am *auth.Manager, blobs *blob.Store) *API {
	return &API{
		hub:      hub,
		store:    st,
		auth:     am,
		blobs:    blobs,
		limiters: ratelimit.NewClientLimiters(writesPerSec, writeBurst),
	}
}

// Router builds the full route table, websocket endpoint included.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/anonymous", a.AnonymousAuthHandler).Methods(http.MethodPost)

	r.Handle("/api/rooms", a.requireAuth(a.CreateRoomHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms", a.ListRoomsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{code}", a.GetRoomHandler).Methods(http.MethodGet)
	r.Handle("/api/rooms/{code}/join", a.requireAuth(a.JoinRoomHandler)).Methods(http.MethodPost)
	r.Handle("/api/rooms/{code}/paths", a.requireAuth(a.rateLimited(a.AppendPathHandler))).Methods(http.MethodPost)
	r.Handle("/api/rooms/{code}/images", a.requireAuth(a.rateLimited(a.AppendImageHandler))).Methods(http.MethodPost)
	r.Handle("/api/rooms/{code}/clear", a.requireAuth(a.ClearBoardHandler)).Methods(http.MethodPost)

	r.Handle("/api/uploads", a.requireAuth(a.UploadHandler)).Methods(http.MethodPost)
	r.PathPrefix("/files/").Handler(
		http.StripPrefix("/files/", http.FileServer(http.Dir(a.blobs.Dir()))),
	).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(a.hub, a.auth, w, r)
	})

	return r
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// Auth

type contextKey string

const userIDKey contextKey = "userID"

func (a *API) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			errorResponse(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		uid, err := a.auth.Verify(token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

// rateLimited throttles board writes per participant identity.
func (a *API) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiters.Get(userID(r)).Allow() {
			errorResponse(w, http.StatusTooManyRequests, "Too many writes")
			return
		}
		next(w, r)
	}
}

type identityResponse struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// AnonymousAuthHandler mints a new anonymous participant identity.
func (a *API) AnonymousAuthHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.auth.IssueAnonymous()
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue identity")
		return
	}
	jsonResponse(w, http.StatusCreated, identityResponse{UID: id.UID, Token: id.Token})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if dbStats, err := a.store.GetStats(); err == nil {
		stats["total_rooms"] = dbStats["room_count"]
		stats["total_strokes"] = dbStats["stroke_count"]
		stats["total_images"] = dbStats["image_count"]
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	Code        string    `json:"code"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
}

type CreateRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.store.ListRooms(limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	activeRooms := a.hub.GetActiveRooms()

	response := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		response[i] = RoomResponse{
			Code:        room.Code,
			Name:        room.Name,
			CreatedAt:   room.CreatedAt,
			UpdatedAt:   room.UpdatedAt,
			ActiveUsers: activeRooms[room.Code],
		}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateRoomHandler creates a room with a client-generated code. The
// creator becomes the first member.
func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !board.ValidCode(req.Code) {
		errorResponse(w, http.StatusBadRequest, "Room code must be 6 characters A-Z0-9")
		return
	}

	if err := a.store.CreateRoom(req.Code, req.Name, userID(r)); err != nil {
		if exists, _ := a.store.RoomExists(req.Code); exists {
			errorResponse(w, http.StatusConflict, "Room code already in use")
			return
		}
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	room, err := a.store.GetRoom(req.Code)
	if err != nil || room == nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	jsonResponse(w, http.StatusCreated, RoomResponse{
		Code:      room.Code,
		Name:      room.Name,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	room, err := a.store.GetRoom(code)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	activeRooms := a.hub.GetActiveRooms()

	jsonResponse(w, http.StatusOK, RoomResponse{
		Code:        room.Code,
		Name:        room.Name,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
		ActiveUsers: activeRooms[code],
	})
}

// JoinRoomHandler adds the caller to the room's member set. Joining is
// idempotent; joining a missing room is a 404, and nothing is written.
func (a *API) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	joined, err := a.store.JoinRoom(code, userID(r))
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to join room")
		return
	}
	if !joined {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	a.hub.Publish(code)
	jsonResponse(w, http.StatusOK, map[string]bool{"joined": true})
}

type AppendPathRequest struct {
	Path      string `json:"path"`
	Color     string `json:"color"`
	Width     int    `json:"width"`
	Timestamp int64  `json:"timestamp"`
}

// AppendPathHandler appends one stroke to the room document. Appends
// have array-union semantics: a stroke equal by value to an existing
// one is dropped silently.
func (a *API) AppendPathHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req AppendPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := board.ParsePath(req.Path); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid path data")
		return
	}
	if req.Color == "" || req.Width <= 0 {
		errorResponse(w, http.StatusBadRequest, "Color and width are required")
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	exists, err := a.store.RoomExists(code)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to check room")
		return
	}
	if !exists {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	stroke := board.Stroke{
		Path:      req.Path,
		Color:     req.Color,
		Width:     req.Width,
		Timestamp: req.Timestamp,
		UserID:    userID(r),
	}
	if err := a.store.AppendStroke(code, stroke); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to append stroke")
		return
	}

	a.hub.Publish(code)
	jsonResponse(w, http.StatusCreated, map[string]string{"status": "committed"})
}

type AppendImageRequest struct {
	StorageURL string `json:"storage_url"`
	Timestamp  int64  `json:"timestamp"`
}

// AppendImageHandler appends one image placement. Placement is always
// at the origin; there is no drag-to-position.
func (a *API) AppendImageHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req AppendImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StorageURL == "" {
		errorResponse(w, http.StatusBadRequest, "storage_url is required")
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	exists, err := a.store.RoomExists(code)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to check room")
		return
	}
	if !exists {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	img := board.Image{
		StorageURL: req.StorageURL,
		X:          0,
		Y:          0,
		Timestamp:  req.Timestamp,
		UserID:     userID(r),
	}
	if err := a.store.AppendImage(code, img); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to append image")
		return
	}

	a.hub.Publish(code)
	jsonResponse(w, http.StatusCreated, map[string]string{"status": "committed"})
}

// ClearBoardHandler atomically resets paths and images to empty. The
// clear is not undoable.
func (a *API) ClearBoardHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	exists, err := a.store.RoomExists(code)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to check room")
		return
	}
	if !exists {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	if err := a.store.ClearBoard(code); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to clear board")
		return
	}

	a.hub.Publish(code)
	jsonResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// UploadHandler stores an uploaded binary and returns its download
// URL. Nothing is committed to any room document here; a failed upload
// leaves every board untouched.
func (a *API) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	url, err := a.blobs.Put(file, header.Filename)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]string{"url": url})
}
