package appcatalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"tools.zach/dev/steamidle/internal/atomicfile"
)

// Store persists cached names. Load runs once at startup; Put is called
// with each batch of new entries.
type Store interface {
	Load() (map[uint32]string, error)
	Put(entries map[uint32]string) error
	Close() error
}

// ///////////////////////////////////////////////
// JSON File Store
// ///////////////////////////////////////////////

// JSONStore keeps the cache as a flat {"appid": "name"} object that is
// rewritten wholesale on every Put.
type JSONStore struct {
	path string

	mu      sync.Mutex
	entries map[string]string
}

// NewJSONStore returns a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, entries: make(map[string]string)}
}

// Load reads the file. A missing file is an empty cache. A malformed file
// also yields an empty cache, with an error describing it.
func (s *JSONStore) Load() (map[uint32]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[uint32]string{}, nil
	}
	if err != nil {
		return map[uint32]string{}, fmt.Errorf("reading app cache: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[uint32]string{}, fmt.Errorf("parsing app cache %s: %w", s.path, err)
	}

	out := make(map[uint32]string, len(raw))
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, name := range raw {
		id, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			continue
		}
		s.entries[k] = name
		out[uint32(id)] = name
	}
	return out, nil
}

// Put merges entries and rewrites the file.
func (s *JSONStore) Put(entries map[uint32]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, name := range entries {
		s.entries[strconv.FormatUint(uint64(id), 10)] = name
	}
	return atomicfile.WriteJSON(s.path, s.entries, 0o644)
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }
