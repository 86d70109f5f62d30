// Package localstore is the on-device key-value cache: last known
// room, onboarding flag, cached identity. It is never the source of
// truth for room membership or strokes; the room document store is.
package localstore

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketFlags = []byte("flags")

const (
	keyLastRoom   = "last_room"
	keyOnboarding = "onboarding_done"
	keyIdentity   = "identity"
)

type Store struct {
	db *bolt.DB
}

// The locally remembered room, shown on next launch. Stale entries are
// harmless: joining re-validates against the backend.
type LastRoom struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type Identity struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFlags)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlags).Put([]byte(key), data)
	})
}

func (s *Store) getJSON(key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketFlags).Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlags).Delete([]byte(key))
	})
}

func (s *Store) SetLastRoom(room LastRoom) error {
	return s.putJSON(keyLastRoom, room)
}

func (s *Store) LastRoom() (*LastRoom, error) {
	var room LastRoom
	ok, err := s.getJSON(keyLastRoom, &room)
	if err != nil || !ok {
		return nil, err
	}
	return &room, nil
}

func (s *Store) ClearLastRoom() error {
	return s.delete(keyLastRoom)
}

func (s *Store) SetOnboardingDone(done bool) error {
	return s.putJSON(keyOnboarding, done)
}

func (s *Store) OnboardingDone() (bool, error) {
	var done bool
	ok, err := s.getJSON(keyOnboarding, &done)
	if err != nil || !ok {
		return false, err
	}
	return done, nil
}

func (s *Store) SetIdentity(id Identity) error {
	return s.putJSON(keyIdentity, id)
}

func (s *Store) Identity() (*Identity, error) {
	var id Identity
	ok, err := s.getJSON(keyIdentity, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

// ClearIdentity forgets the cached identity, e.g. on sign-out. The
// next EnsureIdentity call mints a fresh anonymous participant.
func (s *Store) ClearIdentity() error {
	return s.delete(keyIdentity)
}
