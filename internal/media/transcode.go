package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"hlsfarm/internal/services"
)

// ProgressFunc receives the engine's most recently reported wall-clock
// position, in seconds, as the transcode advances.
type ProgressFunc func(elapsedSeconds float64)

// Keep a short tail of engine diagnostics for error context.
const stderrTailLines = 20

// Transcode runs a single ffmpeg invocation and drains its diagnostic stream
// line by line, reporting each position marker through onProgress. Progress
// is drained synchronously while the engine runs; this is the only point
// where partial results are observable. A non-zero exit is a pipeline error
// carrying the trailing diagnostic lines.
func Transcode(ctx context.Context, args []string, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return services.Wrap(services.ErrPipeline, "media", "run engine", "attach stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrPipeline, "media", "run engine", "start ffmpeg", err)
	}

	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		if len(tail) == stderrTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
		if onProgress == nil {
			continue
		}
		if elapsed, ok := extractPosition(line); ok {
			onProgress(elapsed)
		}
	}

	if err := cmd.Wait(); err != nil {
		detail := fmt.Sprintf("ffmpeg exited abnormally: %s", strings.Join(tail, " | "))
		return services.Wrap(services.ErrPipeline, "media", "run engine", detail, err)
	}
	return nil
}

// scanProgressLines splits on both newlines and carriage returns; ffmpeg
// rewrites its status line with bare \r.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
