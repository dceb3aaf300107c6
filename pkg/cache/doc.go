// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache evicts the least recently used entry once its capacity is
// exceeded. With WithTTL, entries also expire a fixed duration after their
// last write; expired entries are dropped lazily when touched.
//
// # Usage
//
//	titles := cache.NewLRUCache[string, string](1024,
//		cache.WithTTL[string, string](5*time.Minute),
//	)
//	titles.Put("art-1", "Senate passes tuition freeze")
//	if title, ok := titles.Get("art-1"); ok {
//		_ = title
//	}
//
// PutIfAbsent doubles as a bounded "seen" set, which the notification engine
// uses to drop redelivered change events:
//
//	seen := cache.NewLRUCache[string, struct{}](4096)
//	if !seen.PutIfAbsent(eventID, struct{}{}) {
//		return // duplicate
//	}
//
// An eviction callback set through SetEvictCallback runs for evicted,
// expired, removed and cleared entries, so values holding resources (for
// example per-user broadcasters) can be closed.
package cache
