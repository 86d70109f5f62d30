// Package blob is the durable object store backing image uploads.
// Objects are written to disk under opaque names and served back over
// HTTP; the room document only ever references the download URL.
package blob

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Store struct {
	dir     string
	baseURL string
}

// New creates a blob store rooted at dir. baseURL is the public prefix
// download URLs are built from, e.g. "http://host:8080/files".
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put stores the object and returns its download URL. The stored name
// is opaque; the original filename only contributes its extension.
func (s *Store) Put(r io.Reader, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".bin"
	}
	name := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return s.baseURL + "/" + name, nil
}

// Open returns a reader for a stored object by name. Path traversal in
// name is rejected.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	// Base alone lets ".." through, so it is rejected explicitly.
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid object name %q", name)
	}
	return os.Open(filepath.Join(s.dir, name))
}

// Dir returns the on-disk root, for serving via http.FileServer.
func (s *Store) Dir() string {
	return s.dir
}

// NameFromURL extracts the stored object name from a download URL.
func NameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("no object name in %q", raw)
	}
	return name, nil
}
