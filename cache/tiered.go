package cache

import (
	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
)

// Tiered is the client-side translation cache: an in-process map in front of
// a persistent store. Reads promote persistent hits into memory; writes go
// to both tiers, and a failed persistent write is logged and tolerated so a
// full or disabled store never costs a translation.
//
// Keys are derived from (text, targetLang) via livetl.CacheKey, which embeds
// a version prefix for global invalidation.
type Tiered struct {
	memory     *InMemoryStore
	persistent Store // may be nil: memory-only operation
	log        zerolog.Logger
}

// NewTiered creates a two-tier cache. persistent may be nil.
func NewTiered(persistent Store, log zerolog.Logger) *Tiered {
	return &Tiered{
		memory:     NewInMemoryStore(0),
		persistent: persistent,
		log:        log,
	}
}

// Get returns the cached translation of text into targetLang, if any.
func (t *Tiered) Get(text, targetLang string) (string, bool) {
	key := livetl.CacheKey(text, targetLang)

	if val, ok := t.memory.Get(key); ok {
		return val, true
	}

	if t.persistent != nil {
		if val, ok := t.persistent.Get(key); ok {
			// Promote so later reads stay in-process.
			_ = t.memory.Set(key, val)
			return val, true
		}
	}

	return "", false
}

// Set stores a translation in both tiers.
func (t *Tiered) Set(text, targetLang, translation string) {
	key := livetl.CacheKey(text, targetLang)
	_ = t.memory.Set(key, translation)

	if t.persistent != nil {
		if err := t.persistent.Set(key, translation); err != nil {
			t.log.Warn().Err(err).Msg("persistent cache write failed, keeping memory tier")
		}
	}
}

// GetBatch returns the cached translations for the given texts, keyed by
// source text. Texts with no cached translation are absent from the result.
func (t *Tiered) GetBatch(texts []string, targetLang string) map[string]string {
	found := make(map[string]string, len(texts))
	for _, text := range texts {
		if _, seen := found[text]; seen {
			continue
		}
		if val, ok := t.Get(text, targetLang); ok {
			found[text] = val
		}
	}
	return found
}

// SetBatch stores a set of translations keyed by source text.
func (t *Tiered) SetBatch(translations map[string]string, targetLang string) {
	for text, translated := range translations {
		t.Set(text, targetLang, translated)
	}
}

// Clear drops both tiers. The only client-side invalidation besides the key
// version bump.
func (t *Tiered) Clear() {
	_ = t.memory.Clear()
	if t.persistent != nil {
		if c, ok := t.persistent.(ClearableStore); ok {
			if err := c.Clear(); err != nil {
				t.log.Warn().Err(err).Msg("persistent cache clear failed")
			}
		}
	}
}

// MemoryLen reports the size of the memory tier. Exposed for tests and
// diagnostics.
func (t *Tiered) MemoryLen() int {
	return t.memory.Len()
}
