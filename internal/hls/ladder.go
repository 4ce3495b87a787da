package hls

import (
	"fmt"
	"strings"
)

// Rendition is one fixed-resolution tier of the adaptive-bitrate ladder.
type Rendition struct {
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
	BufferSize   string
}

// ladder is the fixed rendition set, ascending bitrate/resolution. Output
// subdirectories are named after each tier's index.
var ladder = []Rendition{
	{Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k", BufferSize: "1600k"},
	{Width: 1280, Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k", BufferSize: "5600k"},
	{Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k", BufferSize: "10000k"},
	{Width: 2560, Height: 1440, VideoBitrate: "10000k", AudioBitrate: "192k", BufferSize: "20000k"},
	{Width: 3840, Height: 2160, VideoBitrate: "20000k", AudioBitrate: "256k", BufferSize: "40000k"},
}

// Ladder returns the fixed rendition ladder.
func Ladder() []Rendition {
	return append([]Rendition(nil), ladder...)
}

// MasterPlaylistName is the engine-written master manifest filename inside a
// working directory.
const MasterPlaylistName = "master.m3u8"

// TranscodeArgs builds the ffmpeg argument list for a single invocation that
// produces every rendition as a segmented VOD stream plus per-rendition
// index manifests and a master manifest. Audio streams are mapped per
// rendition only when the source probe confirmed at least one audio track;
// mapping a missing stream would fail the whole invocation.
func TranscodeArgs(input, outDir string, hasAudio bool) []string {
	args := []string{"-benchmark", "-y", "-i", input}
	varMap := make([]string, 0, len(ladder))

	for idx, tier := range ladder {
		args = append(args,
			"-map", "0:v:0",
			fmt.Sprintf("-c:v:%d", idx), "libx264",
			fmt.Sprintf("-s:%d", idx), fmt.Sprintf("%dx%d", tier.Width, tier.Height),
			fmt.Sprintf("-b:v:%d", idx), tier.VideoBitrate,
			fmt.Sprintf("-maxrate:v:%d", idx), tier.VideoBitrate,
			fmt.Sprintf("-bufsize:v:%d", idx), tier.BufferSize,
		)
		if hasAudio {
			args = append(args,
				"-map", "0:a:0",
				fmt.Sprintf("-c:a:%d", idx), "aac",
				fmt.Sprintf("-b:a:%d", idx), tier.AudioBitrate,
			)
			varMap = append(varMap, fmt.Sprintf("v:%d,a:%d", idx, idx))
		} else {
			varMap = append(varMap, fmt.Sprintf("v:%d", idx))
		}
	}

	args = append(args,
		"-preset", "ultrafast",
		"-g", "60", "-sc_threshold", "0",
		"-keyint_min", "60",
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-master_pl_name", MasterPlaylistName,
		"-var_stream_map", strings.Join(varMap, " "),
		"-hls_segment_filename", outDir+"/%v/%d.ts",
		outDir+"/%v/index.m3u8",
	)
	return args
}
