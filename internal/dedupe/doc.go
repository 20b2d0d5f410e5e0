// Package dedupe provides a TTL-based cache for detecting duplicate
// provider message deliveries.
package dedupe
