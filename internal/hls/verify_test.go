package hls_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"hlsfarm/internal/hls"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
0/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
1/index.m3u8
`

func mediaPlaylist(endList bool, durations ...string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i, d := range durations {
		b.WriteString("#EXTINF:" + d + ",\n")
		b.WriteString(strconv.Itoa(i) + ".ts\n")
	}
	if endList {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

func writeOutput(t *testing.T, renditions map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "master.m3u8"), []byte(masterPlaylist), 0o644); err != nil {
		t.Fatalf("write master: %v", err)
	}
	for sub, content := range renditions {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
		if err := os.WriteFile(filepath.Join(dir, sub, "index.m3u8"), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", sub, err)
		}
	}
	return filepath.Join(dir, "master.m3u8")
}

func TestVerifyOutputValid(t *testing.T) {
	master := writeOutput(t, map[string]string{
		"0": mediaPlaylist(true, "2.000", "1.958"),
		"1": mediaPlaylist(true, "2.000", "2.000", "0.500"),
	})

	report := hls.VerifyOutput(master)
	if !report.IsValid {
		t.Fatalf("expected valid output: %+v", report)
	}
	if report.TotalVariants != 2 || len(report.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %+v", report)
	}
	for _, v := range report.Variants {
		if !v.IsValid || !v.IsEndList || v.SegmentsCount == 0 {
			t.Fatalf("variant should pass: %+v", v)
		}
	}
}

func TestVerifyOutputMissingMaster(t *testing.T) {
	report := hls.VerifyOutput(filepath.Join(t.TempDir(), "master.m3u8"))
	if report.IsValid {
		t.Fatal("missing master must be invalid")
	}
	if report.Error == "" {
		t.Fatal("expected error reason for missing master")
	}
}

func TestVerifyOutputMissingRendition(t *testing.T) {
	master := writeOutput(t, map[string]string{
		"0": mediaPlaylist(true, "2.000"),
		// rendition 1 intentionally absent
	})

	report := hls.VerifyOutput(master)
	if report.IsValid {
		t.Fatal("output with a missing rendition must be invalid")
	}
	var missing *hls.VariantReport
	for i := range report.Variants {
		if report.Variants[i].URI == "1/index.m3u8" {
			missing = &report.Variants[i]
		}
	}
	if missing == nil {
		t.Fatalf("missing rendition not reported: %+v", report)
	}
	if missing.IsValid || missing.Error != "missing" {
		t.Fatalf("missing rendition entry should carry error \"missing\": %+v", missing)
	}
}

func TestVerifyOutputNoEndList(t *testing.T) {
	master := writeOutput(t, map[string]string{
		"0": mediaPlaylist(true, "2.000"),
		"1": mediaPlaylist(false, "2.000"),
	})

	report := hls.VerifyOutput(master)
	if report.IsValid {
		t.Fatal("rendition without end-of-list marker must fail verification")
	}
}

func TestVerifyOutputOversizedSegment(t *testing.T) {
	master := writeOutput(t, map[string]string{
		"0": mediaPlaylist(true, "2.000"),
		"1": mediaPlaylist(true, "4.100"), // exceeds target 2 + tolerance 1.5
	})

	report := hls.VerifyOutput(master)
	if report.IsValid {
		t.Fatal("segment exceeding target+tolerance must fail verification")
	}
}

func TestReportJSONRoundTripsKeyFields(t *testing.T) {
	master := writeOutput(t, map[string]string{
		"0": mediaPlaylist(true, "2.000"),
		"1": mediaPlaylist(true, "2.000"),
	})
	raw := hls.VerifyOutput(master).JSON()
	for _, want := range []string{`"is_valid":true`, `"total_variants":2`, `"uri":"0/index.m3u8"`} {
		if !strings.Contains(raw, want) {
			t.Fatalf("report JSON missing %q: %s", want, raw)
		}
	}
}
