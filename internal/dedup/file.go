package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// fileDocument is the on-disk JSON shape: {"messages": ["id", ...]}.
type fileDocument struct {
	Messages []string `json:"messages"`
}

// FileStore is a Store backed by a single JSON document. The full set is
// held in memory; every successful claim rewrites the file before Claim
// returns, so a concurrent duplicate delivery observes the updated set.
type FileStore struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// OpenFile loads (or creates) the JSON dedup document at path.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		seen: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run; the file is created on the first claim.
	case err != nil:
		return nil, fmt.Errorf("reading dedup file: %w", err)
	default:
		var doc fileDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing dedup file %s: %w", path, err)
		}
		for _, id := range doc.Messages {
			s.seen[id] = struct{}{}
		}
	}

	return s, nil
}

// Claim implements Store. The check, the in-memory insert, and the flush to
// disk all happen under one lock.
func (s *FileStore) Claim(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[id]; dup {
		return false, nil
	}

	s.seen[id] = struct{}{}
	if err := s.flushLocked(); err != nil {
		// Roll back so a retried claim is not silently swallowed after a
		// failed flush.
		delete(s.seen, id)
		return false, err
	}
	return true, nil
}

// flushLocked writes the full set atomically via a temp file rename.
func (s *FileStore) flushLocked() error {
	doc := fileDocument{Messages: make([]string, 0, len(s.seen))}
	for id := range s.seen {
		doc.Messages = append(doc.Messages, id)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding dedup set: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".dedup-*")
	if err != nil {
		return fmt.Errorf("creating dedup temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing dedup temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing dedup temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing dedup file: %w", err)
	}
	return nil
}

// Close implements Store. The file store keeps no open handles.
func (s *FileStore) Close() error { return nil }
