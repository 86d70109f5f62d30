package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration, read from the environment
// with an optional .env file.
type Config struct {
	Addr            string
	DBPath          string
	BlobDir         string
	ArchiveDir      string
	PublicBaseURL   string
	JWTSecret       string
	TokenExpiry     time.Duration
	ArchiveInterval time.Duration
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg := Config{
		Addr:            getenv("DUOBOARD_ADDR", ":8080"),
		DBPath:          getenv("DUOBOARD_DB_PATH", "./data/duoboard.db"),
		BlobDir:         getenv("DUOBOARD_BLOB_DIR", "./data/blobs"),
		ArchiveDir:      getenv("DUOBOARD_ARCHIVE_DIR", "./data/archive"),
		PublicBaseURL:   getenv("DUOBOARD_PUBLIC_URL", "http://localhost:8080"),
		JWTSecret:       os.Getenv("DUOBOARD_JWT_SECRET"),
		TokenExpiry:     getduration("DUOBOARD_TOKEN_EXPIRY", 90*24*time.Hour),
		ArchiveInterval: getduration("DUOBOARD_ARCHIVE_INTERVAL", 5*time.Minute),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("DUOBOARD_JWT_SECRET must be set")
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
