// Package cache provides a file-based result cache with TTL expiration and a
// size budget for upstream lookups.
//
// It sits in front of a slow lookup function and avoids repeating identical
// lookups within the TTL. Key features:
//   - One file per entry in a single directory (default .mcp_cache), no index
//   - SHA-256 keys derived from the (query, scope, limit) triple
//   - Optional gzip compression, tagged per entry so the setting can change
//   - Expired entries swept before every lookup by reading entry headers
//     only, no background goroutine
//   - Oldest-written entries evicted first once the directory exceeds its budget
//   - Hit, miss, error and bytes-written counters, exportable to Prometheus
//
// Writes go through a temp file and an atomic rename. Lookups for the same
// key are serialized within a process; sharing a directory between
// processes is last-writer-wins.
package cache
