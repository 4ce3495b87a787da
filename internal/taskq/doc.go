// Package taskq carries encode tasks between the dispatcher and workers
// over per-worker broker queues.
package taskq
