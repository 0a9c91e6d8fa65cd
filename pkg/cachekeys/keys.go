// Package cachekeys centralizes construction of cache key strings so that every
// store and adapter derives keys the same way.
package cachekeys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// List builds the cache key for a paginated list query. The key is the session
// owner plus the query signature: cache entries are partitioned per user, so
// one session's rows are never served to another. An empty search and page 1
// is the default dashboard view and must always map to the same key for a
// given owner.
func List(owner, search string, page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("u=%s&q=%s&page=%d", owner, search, page)
}

// Detail builds the cache key for a single entity, scoped to the session owner.
func Detail(owner, id string) string {
	return owner + "|" + id
}

// DetailMatches reports whether a detail key refers to the given entity,
// regardless of which owner it belongs to. Cross-owner invalidation of one
// entity walks keys with this.
func DetailMatches(key, id string) bool {
	return strings.HasSuffix(key, "|"+id)
}

// SessionToken builds the Redis key under which a validated session token is
// cached. The raw token is hashed so bearer credentials never appear in Redis
// keyspace listings or logs.
func SessionToken(rawToken string) string {
	h := sha256.Sum256([]byte(rawToken))
	return "kalko-edge:session-token:" + hex.EncodeToString(h[:])
}
