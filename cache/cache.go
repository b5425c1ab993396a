// Package cache provides translation caching: simple key-value stores, the
// two-tier client cache, and the server-side per-entity cache.
package cache

// Store is a minimal key-value store for translated strings.
type Store interface {
	// Get retrieves a cached translation. Returns empty string and false if
	// not found or expired.
	Get(key string) (string, bool)

	// Set stores a translation.
	Set(key string, value string) error
}

// ClearableStore is a Store whose contents can be dropped wholesale.
type ClearableStore interface {
	Store
	Clear() error
}
