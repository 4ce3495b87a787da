package media

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"hlsfarm/internal/services"
)

const (
	ffmpegBinary  = "ffmpeg"
	ffprobeBinary = "ffprobe"
)

// ProbeDuration returns the container duration of a local file in seconds.
// A zero or unreadable duration is an input error: the job cannot compute
// progress or produce meaningful output from such a source.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, services.Wrap(services.ErrInput, "media", "probe duration", "ffprobe failed", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrInput, "media", "probe duration", "unparseable ffprobe output", err)
	}
	if duration == 0 {
		return 0, services.Wrap(services.ErrInput, "media", "probe duration", "could not determine video duration", nil)
	}
	return duration, nil
}

// HasAudio reports whether the source carries at least one audio stream.
// Probe failures count as no audio: mapping a stream that may not exist
// would fail the whole transcode.
func HasAudio(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, ffprobeBinary,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return false
	}
	return strings.TrimSpace(stdout.String()) != ""
}
