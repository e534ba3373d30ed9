// Package services wraps the outbound Spotify Web API surface.
//
// # Gateway
//
// [Gateway] is the single chokepoint for calls to Spotify on behalf of a
// user. It resolves the user's access token from the credential store,
// refreshes it on 401 (serialized per user, so concurrent failures share
// one refresh), and backs off with jitter on 429 within a bounded retry
// budget. Retries are an explicit loop, never recursion.
//
// # Cache
//
// [Cache] short-circuits repeated reads of slowly-changing resources,
// keyed per user. [MemoryCache] is the process-local default;
// [RedisCache] backs the same interface with a shared store for
// multi-instance deployments. Expired entries are kept around so a failed
// refetch can degrade to stale data instead of an error.
//
// # Domain operations
//
// [SpotifyService] exposes the playback, library, playlist, search, and
// browse operations the HTTP layer serves. State-changing calls surface
// gateway errors; polling reads (now playing, follow status, top tracks)
// degrade to empty results so a UI poll loop never breaks on a transient
// upstream failure.
package services
