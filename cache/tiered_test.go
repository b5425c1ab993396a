package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestTiered_SetGet(t *testing.T) {
	c := NewTiered(nil, zerolog.Nop())

	c.Set("Hello", "es", "Hola")

	val, ok := c.Get("Hello", "es")
	if !ok || val != "Hola" {
		t.Errorf("Expected 'Hola', got %q (ok=%v)", val, ok)
	}

	// Different target language is a different key
	if _, ok := c.Get("Hello", "fr"); ok {
		t.Error("Expected miss for different target language")
	}
}

func TestTiered_PromotesPersistentHits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	persistent := NewFileStore(FileStoreConfig{Path: path})

	// Seed only the persistent tier, as if from a previous session.
	first := NewTiered(persistent, zerolog.Nop())
	first.Set("Hello", "es", "Hola")

	second := NewTiered(NewFileStore(FileStoreConfig{Path: path}), zerolog.Nop())
	if second.MemoryLen() != 0 {
		t.Fatal("memory tier should start empty")
	}

	val, ok := second.Get("Hello", "es")
	if !ok || val != "Hola" {
		t.Fatalf("Expected persistent hit, got %q (ok=%v)", val, ok)
	}

	// The hit is promoted into memory.
	if second.MemoryLen() != 1 {
		t.Errorf("Expected promotion into memory tier, got %d entries", second.MemoryLen())
	}
}

// failingStore rejects all writes, like a full browser storage quota.
type failingStore struct{}

func (failingStore) Get(key string) (string, bool) { return "", false }
func (failingStore) Set(key, value string) error   { return errors.New("quota exceeded") }

func TestTiered_PersistentWriteFailureTolerated(t *testing.T) {
	c := NewTiered(failingStore{}, zerolog.Nop())

	c.Set("Hello", "es", "Hola")

	// Memory tier still serves the value.
	if val, ok := c.Get("Hello", "es"); !ok || val != "Hola" {
		t.Errorf("Expected memory hit despite persistent failure, got %q (ok=%v)", val, ok)
	}
}

func TestTiered_GetBatch(t *testing.T) {
	c := NewTiered(nil, zerolog.Nop())
	c.Set("Hello", "es", "Hola")
	c.Set("World", "es", "Mundo")

	found := c.GetBatch([]string{"Hello", "World", "Missing", "Hello"}, "es")

	if len(found) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(found))
	}
	if found["Hello"] != "Hola" || found["World"] != "Mundo" {
		t.Errorf("Unexpected batch result: %v", found)
	}
	if _, ok := found["Missing"]; ok {
		t.Error("Missing text should be absent from result")
	}
}

func TestTiered_SetBatch(t *testing.T) {
	c := NewTiered(nil, zerolog.Nop())

	c.SetBatch(map[string]string{
		"Hello": "Hola",
		"World": "Mundo",
	}, "es")

	if val, _ := c.Get("World", "es"); val != "Mundo" {
		t.Errorf("Expected 'Mundo', got %q", val)
	}
}

func TestTiered_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	persistent := NewFileStore(FileStoreConfig{Path: path})
	c := NewTiered(persistent, zerolog.Nop())

	c.Set("Hello", "es", "Hola")
	c.Clear()

	if _, ok := c.Get("Hello", "es"); ok {
		t.Error("Expected miss after Clear")
	}
	if persistent.Len() != 0 {
		t.Error("Persistent tier should be cleared too")
	}
}
