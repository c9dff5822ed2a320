package cache

import "context"

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from
// the source of truth. It is an alias so backend implementations can satisfy
// CacheService without importing this package.
type FetchFn = func(ctx context.Context) (any, error)

// CacheService exposes the read-through operations the reconciler needs for
// its locally cached auxiliary data (item codes). It is exported so other
// packages can provide alternate cache backends.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetch FetchFn) (any, error)
	Delete(ctx context.Context, key string) error
}

// GetOrFetch is a type-safe wrapper that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
