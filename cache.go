package aegis

import "context"

// Cache provides caching for authorization check results. Implementations
// must return results the caller may modify.
type Cache interface {
	// Get returns a cached check result, if available.
	Get(ctx context.Context, req *CheckRequest) (*CheckResult, bool)

	// Set stores a check result in the cache.
	Set(ctx context.Context, req *CheckRequest, result *CheckResult)

	// InvalidateUser removes all cached results for a user.
	InvalidateUser(ctx context.Context, userID string)

	// InvalidateAll removes every cached result.
	InvalidateAll(ctx context.Context)
}

// GenerationCache is a Cache shared between engine instances. The engine
// reads the user's generation before resolving roles and stores the result
// under it with SetAt, so an invalidation made by another instance while the
// check ran leaves the result unreachable.
type GenerationCache interface {
	Cache

	// Generation returns an opaque token for the user's invalidation state.
	Generation(ctx context.Context, userID string) (string, bool)

	// SetAt stores a result under a token returned by Generation.
	SetAt(ctx context.Context, generation string, req *CheckRequest, result *CheckResult)
}
