package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ZaguanLabs/livetl"
)

// fileFormat is the on-disk JSON structure. It doubles as the cache
// export/import format used by the CLI.
type fileFormat struct {
	Version  string            `json:"version"`
	SavedAt  string            `json:"saved_at"`
	Entries  []fileEntry       `json:"entries"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// fileEntry is a single persisted cache entry.
type fileEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FileStore is a persistent key-value store backed by a single JSON file.
// It is the durable tier of the client cache, standing in for the browser's
// local storage: contents survive process restarts, writes may fail (quota,
// permissions) without affecting readers, and a MaxEntries cap bounds growth.
type FileStore struct {
	path       string
	maxEntries int

	mu      sync.RWMutex
	entries map[string]string
	// order tracks insertion order for eviction when the cap is hit.
	order []string
}

// FileStoreConfig holds configuration for the file store.
type FileStoreConfig struct {
	Path       string // File path (directories are created as needed)
	MaxEntries int    // Entry cap, 0 means 10000
}

// NewFileStore opens (or creates) a file store. A missing or unreadable
// file yields an empty store rather than an error; a corrupt file is
// discarded on the next successful write.
func NewFileStore(cfg FileStoreConfig) *FileStore {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	s := &FileStore{
		path:       cfg.Path,
		maxEntries: maxEntries,
		entries:    make(map[string]string),
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	f, err := os.Open(s.path)
	if err != nil {
		return
	}
	defer f.Close()

	var format fileFormat
	if err := json.NewDecoder(f).Decode(&format); err != nil {
		return
	}

	for _, e := range format.Entries {
		if _, ok := s.entries[e.Key]; !ok {
			s.order = append(s.order, e.Key)
		}
		s.entries[e.Key] = e.Value
	}
}

// Get retrieves a persisted value.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.entries[key]
	return val, ok
}

// Set stores a value and rewrites the backing file. The in-memory copy is
// updated even when the disk write fails, so a full disk degrades the store
// to session-only persistence.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = value

	// Evict oldest entries past the cap.
	for len(s.order) > s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return &livetl.CacheError{Message: "persisting file store", Cause: err}
	}
	return nil
}

// Clear drops all entries and truncates the backing file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	s.entries = make(map[string]string)
	s.order = nil
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return &livetl.CacheError{Message: "clearing file store", Cause: err}
	}
	return nil
}

// Len returns the number of persisted entries.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// persist writes the whole store to disk atomically (temp file + rename).
func (s *FileStore) persist() error {
	s.mu.RLock()
	format := s.snapshotLocked(nil)
	s.mu.RUnlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".livetl-cache-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(format); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) snapshotLocked(metadata map[string]string) fileFormat {
	entries := make([]fileEntry, 0, len(s.entries))
	for key, value := range s.entries {
		entries = append(entries, fileEntry{Key: key, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	return fileFormat{
		Version:  "1.0",
		SavedAt:  time.Now().UTC().Format(time.RFC3339),
		Entries:  entries,
		Metadata: metadata,
	}
}

// Export writes the store contents to a writer in the export JSON format.
func (s *FileStore) Export(w io.Writer, metadata map[string]string) error {
	s.mu.RLock()
	format := s.snapshotLocked(metadata)
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(format)
}

// ImportResult contains statistics about an import operation.
type ImportResult struct {
	Version  string
	Metadata map[string]string
	Imported int
	Failed   int
}

// Import loads entries from a reader in the export JSON format into any
// Store.
func Import(r io.Reader, dst Store) (*ImportResult, error) {
	var format fileFormat
	if err := json.NewDecoder(r).Decode(&format); err != nil {
		return nil, &livetl.CacheError{Message: "decoding import", Cause: err}
	}

	result := &ImportResult{
		Version:  format.Version,
		Metadata: format.Metadata,
	}
	for _, e := range format.Entries {
		if err := dst.Set(e.Key, e.Value); err != nil {
			result.Failed++
			continue
		}
		result.Imported++
	}
	return result, nil
}

var _ ClearableStore = (*FileStore)(nil)
