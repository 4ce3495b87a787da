// Package worker consumes encode tasks, runs the transcode pipeline, and
// reports this process's health for dispatcher selection.
package worker
