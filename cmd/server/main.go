package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"duoboard/internal/api"
	"duoboard/internal/archive"
	"duoboard/internal/auth"
	"duoboard/internal/blob"
	"duoboard/internal/config"
	"duoboard/internal/store"
	"duoboard/internal/ws"
)

func main() {
	cfg := config.Load()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	blobs, err := blob.New(cfg.BlobDir, cfg.PublicBaseURL+"/files")
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	authManager := auth.NewManager(cfg.JWTSecret, cfg.TokenExpiry)

	hub := ws.NewHub(st)
	go hub.Run()

	archiver := archive.New(st, archive.Config{
		Interval: cfg.ArchiveInterval,
		Dir:      cfg.ArchiveDir,
	})
	archiver.Start()

	apiHandler := api.New(hub, st, authManager, blobs)
	handler := corsMiddleware(apiHandler.Router())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		archiver.Stop()
		st.Close()
		os.Exit(0)
	}()

	log.Printf("duoboard server starting on %s", cfg.Addr)
	log.Printf("Database: %s", cfg.DBPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws?room={code}&token={token}")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Identity:  POST /api/auth/anonymous")
	log.Println("  - Rooms:     GET/POST /api/rooms")
	log.Println("  - Room:      GET /api/rooms/{code}")
	log.Println("  - Join:      POST /api/rooms/{code}/join")
	log.Println("  - Paths:     POST /api/rooms/{code}/paths")
	log.Println("  - Images:    POST /api/rooms/{code}/images")
	log.Println("  - Clear:     POST /api/rooms/{code}/clear")
	log.Println("  - Uploads:   POST /api/uploads")

	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
