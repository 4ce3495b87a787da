package hls_test

import (
	"strings"
	"testing"

	"hlsfarm/internal/hls"
)

func TestLadderShape(t *testing.T) {
	ladder := hls.Ladder()
	if len(ladder) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(ladder))
	}
	if ladder[0].Width != 640 || ladder[0].VideoBitrate != "800k" {
		t.Fatalf("unexpected lowest tier: %+v", ladder[0])
	}
	if ladder[4].Height != 2160 || ladder[4].BufferSize != "40000k" {
		t.Fatalf("unexpected highest tier: %+v", ladder[4])
	}
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

func TestTranscodeArgsWithAudio(t *testing.T) {
	args := hls.TranscodeArgs("in.mp4", "/tmp/work", true)

	varMap := argValue(t, args, "-var_stream_map")
	want := "v:0,a:0 v:1,a:1 v:2,a:2 v:3,a:3 v:4,a:4"
	if varMap != want {
		t.Fatalf("var_stream_map = %q, want %q", varMap, want)
	}

	audioMaps := 0
	for i, arg := range args {
		if arg == "-map" && i+1 < len(args) && args[i+1] == "0:a:0" {
			audioMaps++
		}
	}
	if audioMaps != 5 {
		t.Fatalf("expected one audio map per tier, got %d", audioMaps)
	}

	if got := argValue(t, args, "-hls_time"); got != "2" {
		t.Fatalf("segment duration = %q, want 2", got)
	}
	if got := argValue(t, args, "-hls_playlist_type"); got != "vod" {
		t.Fatalf("playlist type = %q, want vod", got)
	}
	if got := argValue(t, args, "-hls_segment_filename"); got != "/tmp/work/%v/%d.ts" {
		t.Fatalf("segment filename = %q", got)
	}
	if args[len(args)-1] != "/tmp/work/%v/index.m3u8" {
		t.Fatalf("final output path = %q", args[len(args)-1])
	}
}

func TestTranscodeArgsWithoutAudio(t *testing.T) {
	args := hls.TranscodeArgs("in.mp4", "/tmp/work", false)

	varMap := argValue(t, args, "-var_stream_map")
	if varMap != "v:0 v:1 v:2 v:3 v:4" {
		t.Fatalf("var_stream_map = %q, want video-only entries", varMap)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "0:a:0") || strings.Contains(joined, "-c:a:") {
		t.Fatalf("audio flags present for audio-less source: %s", joined)
	}
}

func TestTranscodeArgsBitratesPerTier(t *testing.T) {
	args := hls.TranscodeArgs("in.mp4", "out", true)
	checks := map[string]string{
		"-b:v:0":       "800k",
		"-maxrate:v:2": "5000k",
		"-bufsize:v:4": "40000k",
		"-b:a:1":       "128k",
		"-s:3":         "2560x1440",
	}
	for flag, want := range checks {
		if got := argValue(t, args, flag); got != want {
			t.Fatalf("%s = %q, want %q", flag, got, want)
		}
	}
}
