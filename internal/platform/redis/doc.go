// Package redis adapts a Redis server to the pipeline's cache and broadcast needs:
// answer storage with TTL (cache.KV) and pub/sub publication of outcomes
// (events.Broadcaster).
package redis
