// Package cache stores results of operations whose contract marks them cacheable.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Cache holds encoded operation results by key
type Cache interface {
	// Get returns the cached result and true if found and not expired
	Get(key string) ([]byte, bool)

	// Set stores a result under key
	Set(key string, value []byte)

	// Close releases any resources held by the cache
	Close()
}

// Key derives the cache key of a call from its operation, version and arguments.
// Arguments that cannot be encoded make the call uncacheable.
func Key(operation, version string, args []interface{}) (string, bool) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	hash := sha256.Sum256(encoded)
	return operation + "@" + version + ":" + hex.EncodeToString(hash[:8]), true
}
