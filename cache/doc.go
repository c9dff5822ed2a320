// Package cache provides caching interfaces and key serialization for the
// reconciler's locally cached auxiliary data.
//
// Two pieces are exported:
//
//   - CacheService: a read-through caching interface backed by sturdyc
//     (see internal/cacheinfra)
//   - KeySerializer: builds stable cache keys from method names and arguments
//
// The default key serializer keeps the method name in the clear, so callers
// can still reason about key namespaces, and digests the argument tail with
// xxhash for compact deterministic keys:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("GetItemCode", itemID)
//
//	code, err := cache.GetOrFetch(ctx, service, key, func(ctx context.Context) (string, error) {
//		return source.GetItemCode(ctx, itemID)
//	})
//
// Function arguments are rendered by pointer, which is stable only within a
// single process lifetime; that matches the scope of the in-memory backend.
// When JSON marshaling of a composite argument fails, the serializer falls
// back to type information rather than panicking, so cache operations keep
// working even with problematic values.
package cache
