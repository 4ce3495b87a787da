// Package media invokes the external probe and transcode engines and
// extracts streaming progress from the transcoder's diagnostic output.
package media
