package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File persists sealed values as a JSON object in a single file with mode 0600.
// Writes go to a temporary file that is renamed into place.
type File struct {
	path   string
	sealer *Sealer

	mu sync.Mutex
}

// NewFile creates a file backend. sealer is required.
func NewFile(path string, sealer *Sealer) (*File, error) {
	if path == "" {
		return nil, errors.New("authkit/store: empty file path")
	}
	if sealer == nil {
		return nil, errors.New("authkit/store: file backend requires a sealer")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("authkit/store: create dir: %w", err)
	}
	return &File{path: path, sealer: sealer}, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	sealed, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return f.sealer.Open(key, sealed)
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	sealed, err := f.sealer.Seal(key, value)
	if err != nil {
		return err
	}
	values[key] = sealed
	return f.save(values)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("authkit/store: read: %w", err)
	}
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("authkit/store: parse %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("authkit/store: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".authkit-*")
	if err != nil {
		return fmt.Errorf("authkit/store: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("authkit/store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("authkit/store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("authkit/store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("authkit/store: rename: %w", err)
	}
	return nil
}
