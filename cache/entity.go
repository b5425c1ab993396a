package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ZaguanLabs/livetl"
)

// Entry is a server-side cached translation of one field of one entity into
// one target language.
type Entry struct {
	EntityType      string  `json:"entity_type"`
	EntityID        string  `json:"entity_id"`
	FieldName       string  `json:"field_name"`
	TargetLanguage  string  `json:"target_language"`
	SourceLanguage  string  `json:"source_language"`
	SourceHash      string  `json:"source_hash"`
	Translated      string  `json:"translated"`
	ProviderName    string  `json:"provider_name"`
	ProviderVersion string  `json:"provider_version"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// EntityCache stores per-entity translations with source-hash invalidation.
//
// Every method is fail-soft: storage errors are logged by implementations
// and surface as cache misses or dropped writes, never as errors, because
// translation must not block content delivery.
type EntityCache interface {
	// Get returns the entry for the key, if one exists.
	Get(ctx context.Context, entityType, entityID, fieldName, targetLang string) (*Entry, bool)

	// GetIfHashMatches is the primary read path: it returns the cached
	// translation only when an entry exists and its stored source hash
	// equals sourceHash. A stale hash reads as a miss.
	GetIfHashMatches(ctx context.Context, entityType, entityID, fieldName, targetLang, sourceHash string) (string, bool)

	// Upsert creates or replaces the entry for its key. Concurrent writers
	// for the same key converge last-write-wins.
	Upsert(ctx context.Context, entry *Entry)

	// DeleteAllForEntity purges every entry of an entity, across all fields
	// and target languages. Called when the owning entity is deleted.
	DeleteAllForEntity(ctx context.Context, entityType, entityID string)
}

// MemoryEntityCache is a map-backed EntityCache for tests and single-node
// deployments.
type MemoryEntityCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryEntityCache creates an empty in-memory entity cache.
func NewMemoryEntityCache() *MemoryEntityCache {
	return &MemoryEntityCache{entries: make(map[string]*Entry)}
}

func (c *MemoryEntityCache) Get(_ context.Context, entityType, entityID, fieldName, targetLang string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[livetl.EntityCacheKey(entityType, entityID, fieldName, targetLang)]
	return entry, ok
}

func (c *MemoryEntityCache) GetIfHashMatches(ctx context.Context, entityType, entityID, fieldName, targetLang, sourceHash string) (string, bool) {
	entry, ok := c.Get(ctx, entityType, entityID, fieldName, targetLang)
	if !ok || entry.SourceHash != sourceHash {
		return "", false
	}
	return entry.Translated, true
}

func (c *MemoryEntityCache) Upsert(_ context.Context, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := livetl.EntityCacheKey(entry.EntityType, entry.EntityID, entry.FieldName, entry.TargetLanguage)
	c.entries[key] = entry
}

func (c *MemoryEntityCache) DeleteAllForEntity(_ context.Context, entityType, entityID string) {
	prefix := livetl.EntityKeyPrefix(entityType, entityID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached entries.
func (c *MemoryEntityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisEntityCache is a Redis-backed EntityCache. Entries are stored as JSON
// values; purging an entity SCANs its key prefix.
type RedisEntityCache struct {
	client    *redis.Client
	keyPrefix string
	log       zerolog.Logger
}

// NewRedisEntityCache creates an entity cache on an existing Redis client.
func NewRedisEntityCache(client *redis.Client, keyPrefix string, log zerolog.Logger) *RedisEntityCache {
	if keyPrefix == "" {
		keyPrefix = "livetl:entity:"
	}
	return &RedisEntityCache{
		client:    client,
		keyPrefix: keyPrefix,
		log:       log,
	}
}

func (c *RedisEntityCache) Get(ctx context.Context, entityType, entityID, fieldName, targetLang string) (*Entry, bool) {
	key := c.keyPrefix + livetl.EntityCacheKey(entityType, entityID, fieldName, targetLang)
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("entity cache read failed, treating as miss")
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("entity cache entry corrupt, treating as miss")
		return nil, false
	}
	return &entry, true
}

func (c *RedisEntityCache) GetIfHashMatches(ctx context.Context, entityType, entityID, fieldName, targetLang, sourceHash string) (string, bool) {
	entry, ok := c.Get(ctx, entityType, entityID, fieldName, targetLang)
	if !ok || entry.SourceHash != sourceHash {
		return "", false
	}
	return entry.Translated, true
}

func (c *RedisEntityCache) Upsert(ctx context.Context, entry *Entry) {
	key := c.keyPrefix + livetl.EntityCacheKey(entry.EntityType, entry.EntityID, entry.FieldName, entry.TargetLanguage)
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("entity cache entry marshal failed, dropping write")
		return
	}
	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("entity cache write failed, dropping write")
	}
}

func (c *RedisEntityCache) DeleteAllForEntity(ctx context.Context, entityType, entityID string) {
	pattern := c.keyPrefix + livetl.EntityKeyPrefix(entityType, entityID) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("entity cache purge scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("entity cache purge failed")
	}
}

var (
	_ EntityCache = (*MemoryEntityCache)(nil)
	_ EntityCache = (*RedisEntityCache)(nil)
)
