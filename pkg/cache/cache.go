// Package cache provides a small key-value cache for read projections.
package cache

// Cache is the read-projection cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
	Delete(key string) error
}
