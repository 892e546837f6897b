// Package cache provides a TTL key/value cache contract with three implementations:
//
//   - Memory: an in-process map, expired entries evicted lazily on Get and by a periodic sweep.
//   - Persistent: the whole namespace kept as one JSON document under a single KVStore key.
//   - Tiered: a fast tier in front of a slow tier, hydrating the fast tier on slow hits.
//
// Used by the Twitch service to keep streamer lookups, live stream snapshots and recent VOD
// lists away from the rate-limited API.
package cache
