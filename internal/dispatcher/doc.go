// Package dispatcher watches the upload bucket and assigns each newly
// observed video version to the least loaded live worker.
package dispatcher
