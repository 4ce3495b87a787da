// Package catalog persists Video, EncodingJob, and Worker records in the
// relational store. Videos are upserted by their (original path, ETag)
// dedup key, workers by hostname, and jobs by identifier; terminal job
// statuses are immutable once written.
package catalog
