// Package state wraps the shared ephemeral key/value store used for worker
// heartbeats, per-worker execution locks, the global in-flight-encode
// counter, and the upload dedup cache.
package state
