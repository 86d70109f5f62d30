// Package archive periodically exports the latest document of recently
// active rooms as JSON files. The export feeds board previews (the
// mobile app's home-screen widget reads the last board state without a
// live subscription). Archive files are derived data and never read
// back into the store.
package archive

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"duoboard/internal/store"
)

type Config struct {
	Interval time.Duration
	Dir      string
}

func DefaultConfig(dir string) Config {
	return Config{
		Interval: 5 * time.Minute,
		Dir:      dir,
	}
}

type Service struct {
	store   *store.Store
	config  Config
	lastRun time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(st *store.Store, config Config) *Service {
	return &Service{
		store:  st,
		config: config,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("Archive service started (interval: %v, dir: %s)", s.config.Interval, s.config.Dir)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("Archive service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
		log.Printf("Archive: cannot create %s: %v", s.config.Dir, err)
		return
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.archiveActiveRooms()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.archiveActiveRooms()
		}
	}
}

func (s *Service) archiveActiveRooms() {
	since := s.lastRun
	s.lastRun = time.Now()

	codes, err := s.store.RoomsUpdatedSince(since)
	if err != nil {
		log.Printf("Archive: failed to list active rooms: %v", err)
		return
	}

	archived := 0
	for _, code := range codes {
		if err := s.archiveRoom(code); err != nil {
			log.Printf("Archive: failed for room %s: %v", code, err)
		} else {
			archived++
		}
	}

	if archived > 0 {
		log.Printf("Archived %d rooms", archived)
	}
}

func (s *Service) archiveRoom(code string) error {
	snap, err := s.store.Snapshot(code)
	if err != nil || snap == nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a preview reader never sees a torn file.
	path := filepath.Join(s.config.Dir, code+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ArchiveNow exports one room immediately.
func (s *Service) ArchiveNow(code string) error {
	if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
		return err
	}
	return s.archiveRoom(code)
}
