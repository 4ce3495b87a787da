// Package hls owns the fixed rendition ladder, the ffmpeg argument builder
// for multi-rendition segmented output, verification of produced playlists,
// and generation of the aggregate catalog manifest.
package hls
