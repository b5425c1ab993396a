// Package server implements the server half of the translation pipeline:
// the translate-for-user orchestrator over the per-entity cache, and the
// HTTP API consumed by the client-side batcher.
package server

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
	"github.com/ZaguanLabs/livetl/cache"
	"github.com/ZaguanLabs/livetl/provider"
)

// Orchestrator implements translate-for-user: cached translation of entity
// fields with source-hash invalidation, falling back to the provider on a
// miss and writing the result back best-effort.
//
// All methods are fail-open. The worst case of any provider or cache
// failure is that a field comes back untranslated.
type Orchestrator struct {
	adapter *provider.Adapter
	cache   cache.EntityCache
	log     zerolog.Logger
}

// NewOrchestrator creates an orchestrator over an adapter and entity cache.
func NewOrchestrator(adapter *provider.Adapter, entityCache cache.EntityCache, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		adapter: adapter,
		cache:   entityCache,
		log:     log,
	}
}

// TranslateForUser translates one field of one entity into the user's
// language.
//
// Same source and target language, or empty content, short-circuits to the
// content unchanged without touching the cache. A cache hit requires the
// stored source hash to match the current content; an edited source forces
// re-translation. Cache write failures never affect the returned value.
func (o *Orchestrator) TranslateForUser(ctx context.Context, entityType, entityID, fieldName, content, sourceLang, targetLang string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	target := livetl.Normalize(targetLang)
	if livetl.Normalize(sourceLang) == target {
		return content
	}

	sourceHash := livetl.HashText(content)
	if translated, ok := o.cache.GetIfHashMatches(ctx, entityType, entityID, fieldName, target, sourceHash); ok {
		return translated
	}

	translated := o.adapter.TranslateOne(ctx, content, sourceLang, target)
	if translated == content {
		// Nothing was translated (failure or identity); don't poison the
		// cache with an echo.
		return content
	}

	o.cache.Upsert(ctx, &cache.Entry{
		EntityType:      entityType,
		EntityID:        entityID,
		FieldName:       fieldName,
		TargetLanguage:  target,
		SourceLanguage:  livetl.Normalize(sourceLang),
		SourceHash:      sourceHash,
		Translated:      translated,
		ProviderName:    o.adapter.ProviderName(),
		ProviderVersion: o.adapter.ProviderVersion(),
	})

	return translated
}

// TranslateMany translates a record's fields in parallel, preserving keys.
// A failed field falls back to its original content without aborting the
// batch.
func (o *Orchestrator) TranslateMany(ctx context.Context, entityType, entityID string, fields map[string]string, sourceLang, targetLang string) map[string]string {
	out := make(map[string]string, len(fields))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, content := range fields {
		wg.Add(1)
		go func(name, content string) {
			defer wg.Done()
			translated := o.TranslateForUser(ctx, entityType, entityID, name, content, sourceLang, targetLang)
			mu.Lock()
			out[name] = translated
			mu.Unlock()
		}(name, content)
	}
	wg.Wait()

	return out
}

// TranslateObjects translates the allow-listed fields of each record in a
// slice, in parallel, preserving order. idField names the record key that
// carries the entity ID; records without it keep their fields untranslated
// rather than sharing a cache slot.
func (o *Orchestrator) TranslateObjects(ctx context.Context, entityType string, records []map[string]string, idField string, fields []string, sourceLang, targetLang string) []map[string]string {
	out := make([]map[string]string, len(records))
	var wg sync.WaitGroup

	for i, record := range records {
		wg.Add(1)
		go func(i int, record map[string]string) {
			defer wg.Done()

			translated := make(map[string]string, len(record))
			for k, v := range record {
				translated[k] = v
			}

			entityID := record[idField]
			if entityID != "" {
				for _, field := range fields {
					if content, ok := record[field]; ok {
						translated[field] = o.TranslateForUser(ctx, entityType, entityID, field, content, sourceLang, targetLang)
					}
				}
			}

			out[i] = translated
		}(i, record)
	}
	wg.Wait()

	return out
}

// TMany translates an arbitrary string-keyed map of UI strings, preserving
// keys. Entries are cached under the "ui" entity type with the map key as
// both entity ID and field name.
func (o *Orchestrator) TMany(ctx context.Context, strs map[string]string, sourceLang, targetLang string) map[string]string {
	out := make(map[string]string, len(strs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for key, content := range strs {
		wg.Add(1)
		go func(key, content string) {
			defer wg.Done()
			translated := o.TranslateForUser(ctx, "ui", key, "text", content, sourceLang, targetLang)
			mu.Lock()
			out[key] = translated
			mu.Unlock()
		}(key, content)
	}
	wg.Wait()

	return out
}

// PurgeEntity removes every cached translation of an entity. Called when
// the owning post or comment is deleted.
func (o *Orchestrator) PurgeEntity(ctx context.Context, entityType, entityID string) {
	o.cache.DeleteAllForEntity(ctx, entityType, entityID)
}
