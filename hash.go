package livetl

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// cacheKeyVersion is embedded in every client cache key. Bumping it
// invalidates all previously stored translations at once.
const cacheKeyVersion = "v1"

// HashText computes the SHA-256 hash of the trimmed text.
func HashText(text string) string {
	trimmed := strings.TrimSpace(text)
	hash := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(hash[:])
}

// CacheKey derives the client cache key for a (text, targetLang) pair.
// The delimiter is not expected in either component; the whole compound is
// hashed so keys stay fixed-width and collision-resistant.
func CacheKey(text, targetLang string) string {
	return cacheKeyVersion + ":" + HashText(text+"||"+targetLang)
}

// EntityCacheKey derives the server cache key for one translated field of
// one entity in one target language.
func EntityCacheKey(entityType, entityID, fieldName, targetLang string) string {
	return entityType + ":" + entityID + ":" + fieldName + ":" + targetLang
}

// EntityKeyPrefix is the key prefix shared by all cached fields of an
// entity, used to purge them together when the entity is deleted.
func EntityKeyPrefix(entityType, entityID string) string {
	return entityType + ":" + entityID + ":"
}
