// Package objectstore talks to the S3-compatible buckets that hold
// uploaded source videos and produced HLS streams.
package objectstore
